package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/orm/internal/orm/config"
	"github.com/conduit-lang/orm/internal/orm/query"
	"github.com/conduit-lang/orm/internal/orm/schema"
)

func seedUsersWithPosts(t *testing.T, env *testEnv) (*Entity, *Entity) {
	t.Helper()
	p1 := env.create(t, "User", map[string]interface{}{"name": "P1"})
	p2 := env.create(t, "User", map[string]interface{}{"name": "P2"})
	env.create(t, "Post", map[string]interface{}{"user_id": p1.Key(), "title": "c1"})
	env.create(t, "Post", map[string]interface{}{"user_id": p2.Key(), "title": "c3"})
	env.create(t, "Post", map[string]interface{}{"user_id": p1.Key(), "title": "c2"})
	env.reset()
	return p1, p2
}

func titles(entities []*Entity) []interface{} {
	out := make([]interface{}, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Get("title"))
	}
	return out
}

func TestEagerLoad_HasManyGroupsInOneQuery(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	seedUsersWithPosts(t, env)

	users, err := env.m.Query("User").
		WithConstraint("posts", func(q *Query) { q.OrderBy("posts.title", "asc") }).
		OrderBy("users.id", "asc").
		Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, env.queries(), "one query for users, one for all posts")

	require.Len(t, users, 2)
	p1Posts, ok := users[0].Relation("posts")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"c1", "c2"}, titles(p1Posts.([]*Entity)))

	p2Posts, _ := users[1].Relation("posts")
	assert.Equal(t, []interface{}{"c3"}, titles(p2Posts.([]*Entity)))
}

func TestEagerLoad_QueryCountIndependentOfParents(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		u := env.create(t, "User", map[string]interface{}{"name": "u"})
		env.create(t, "Post", map[string]interface{}{"user_id": u.Key(), "title": "t"})
	}
	env.reset()

	users, err := env.m.Query("User").With("posts", "profile").Get(ctx)
	require.NoError(t, err)
	require.Len(t, users, 10)
	assert.Equal(t, 3, env.queries())

	for _, u := range users {
		posts, err := u.Many(ctx, "posts")
		require.NoError(t, err)
		assert.Len(t, posts, 1)

		profile, err := u.One(ctx, "profile")
		require.NoError(t, err)
		assert.Nil(t, profile)
	}
	assert.Equal(t, 0, env.queries(), "loaded relations are served from the cache")
}

func TestEagerLoad_HasOneTakesFirstMatch(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	withProfiles := env.create(t, "User", map[string]interface{}{"name": "A"})
	bare := env.create(t, "User", map[string]interface{}{"name": "B"})
	env.create(t, "Profile", map[string]interface{}{"user_id": withProfiles.Key(), "bio": "first"})
	env.create(t, "Profile", map[string]interface{}{"user_id": withProfiles.Key(), "bio": "second"})
	env.reset()

	users, err := env.m.Query("User").
		WithConstraint("profile", func(q *Query) { q.OrderBy("profiles.id", "asc") }).
		OrderBy("users.id", "asc").
		Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, env.queries())
	require.Len(t, users, 2)

	profile, err := users[0].One(ctx, "profile")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "first", profile.Get("bio"))

	// a missing single relation is cached as a plain nil
	v, ok := users[1].Relation("profile")
	require.True(t, ok)
	assert.True(t, v == nil)
	assert.Equal(t, bare.Key(), users[1].Key())

	users, err = env.m.Query("User").
		WithConstraint("profile", func(q *Query) { q.OrderBy("profiles.id", "desc") }).
		Where("users.id", query.OpEqual, withProfiles.Key()).
		Get(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	profile, err = users[0].One(ctx, "profile")
	require.NoError(t, err)
	assert.Equal(t, "second", profile.Get("bio"))
}

func TestLoad_MissingSingleRelationIsNil(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	p := env.create(t, "Post", map[string]interface{}{"title": "orphan"})
	v, err := p.Load(ctx, "author")
	require.NoError(t, err)
	assert.True(t, v == nil)
}

func TestEagerLoad_BelongsTo(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	p1, _ := seedUsersWithPosts(t, env)
	env.create(t, "Post", map[string]interface{}{"title": "orphan"})
	env.reset()

	posts, err := env.m.Query("Post").With("author").OrderBy("posts.id", "asc").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, env.queries())
	require.Len(t, posts, 4)

	author, err := posts[0].One(ctx, "author")
	require.NoError(t, err)
	require.NotNil(t, author)
	assert.Equal(t, p1.Key(), author.Key())

	orphan, err := posts[3].One(ctx, "author")
	require.NoError(t, err)
	assert.Nil(t, orphan)
}

func TestEagerLoad_Nested(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	seedUsersWithPosts(t, env)

	users, err := env.m.Query("User").With("posts", "posts.author").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, env.queries())

	posts, _ := users[0].Relation("posts")
	author, ok := posts.([]*Entity)[0].Relation("author")
	require.True(t, ok)
	assert.Equal(t, users[0].Key(), author.(*Entity).Key())
}

func TestEagerLoad_ExistingEntities(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	seedUsersWithPosts(t, env)

	users, err := env.m.All(ctx, "User")
	require.NoError(t, err)
	env.reset()

	require.NoError(t, env.m.EagerLoad(ctx, users, "posts"))
	assert.Equal(t, 1, env.queries())
	assert.True(t, users[1].RelationLoaded("posts"))
}

func TestWith_UnknownRelation(t *testing.T) {
	env := setup(t, nil)

	_, err := env.m.Query("User").With("comments").Get(context.Background())
	var rnf *RelationNotFoundError
	require.True(t, errors.As(err, &rnf))
	assert.Equal(t, "comments", rnf.Relation)
	assert.True(t, errors.Is(err, ErrRelationNotFound))
	assert.Equal(t, 0, env.queries())
}

func TestLoad_InvalidRelation(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	_, err := env.m.Register(&schema.EntityType{
		Name:  "Broken",
		Table: "posts",
		Relations: map[string]*schema.RelationDef{
			"weird":   {Kind: "morph_to", Related: "User"},
			"missing": schema.HasMany("Ghost"),
		},
	})
	require.NoError(t, err)
	assert.Error(t, env.m.Check())

	b := env.create(t, "Broken", nil)
	_, err = b.Load(ctx, "weird")
	assert.True(t, errors.Is(err, ErrInvalidRelation))
	_, err = b.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrInvalidRelation))
	_, err = b.Load(ctx, "nothing")
	assert.True(t, errors.Is(err, ErrRelationNotFound))
}

func TestLazyLoading(t *testing.T) {
	t.Run("allowed by default", func(t *testing.T) {
		env := setup(t, nil)
		p1, _ := seedUsersWithPosts(t, env)

		posts, err := p1.Many(context.Background(), "posts")
		require.NoError(t, err)
		assert.Len(t, posts, 2)
		assert.Equal(t, 1, env.queries())
	})

	t.Run("prevented", func(t *testing.T) {
		env := setup(t, func(cfg *config.Config) {
			cfg.LazyLoading.Prevent = true
		})
		ctx := context.Background()
		seedUsersWithPosts(t, env)

		users, err := env.m.All(ctx, "User")
		require.NoError(t, err)
		env.reset()

		_, err = users[0].Load(ctx, "posts")
		var violation *LazyLoadingViolationError
		require.True(t, errors.As(err, &violation))
		assert.Equal(t, "User", violation.Entity)
		assert.Equal(t, "posts", violation.Relation)
		assert.Equal(t, 0, env.queries())

		// eager loading is explicit and bypasses the guard
		require.NoError(t, users[0].LoadRelations(ctx, "posts"))
		posts, err := users[0].Many(ctx, "posts")
		require.NoError(t, err)
		assert.Len(t, posts, 2)
	})

	t.Run("allow list", func(t *testing.T) {
		env := setup(t, func(cfg *config.Config) {
			cfg.LazyLoading.Prevent = true
			cfg.LazyLoading.AllowedRelations = []string{"User.posts"}
		})
		p1, _ := seedUsersWithPosts(t, env)

		_, err := p1.Load(context.Background(), "posts")
		require.NoError(t, err)
		_, err = p1.Load(context.Background(), "profile")
		assert.True(t, errors.Is(err, ErrLazyLoadingViolation))
	})

	t.Run("testing exception", func(t *testing.T) {
		env := setup(t, func(cfg *config.Config) {
			cfg.LazyLoading.Prevent = true
			cfg.LazyLoading.AllowTesting = true
			cfg.Environment = "testing"
		})
		p1, _ := seedUsersWithPosts(t, env)

		_, err := p1.Load(context.Background(), "posts")
		assert.NoError(t, err)
	})
}

func seedRoles(t *testing.T, env *testEnv) []interface{} {
	t.Helper()
	var ids []interface{}
	for _, name := range []string{"admin", "editor", "viewer"} {
		r := env.create(t, "Role", map[string]interface{}{"name": name})
		ids = append(ids, r.Key())
	}
	return ids
}

func TestBelongsToMany_Sync(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	roles := seedRoles(t, env)
	p := env.create(t, "User", map[string]interface{}{"name": "P"})
	other := env.create(t, "User", map[string]interface{}{"name": "O"})

	pr, err := p.BelongsToMany("roles")
	require.NoError(t, err)
	require.NoError(t, pr.Attach(ctx, []interface{}{roles[0], roles[1]}, nil))

	otherRoles, err := other.BelongsToMany("roles")
	require.NoError(t, err)
	require.NoError(t, otherRoles.Attach(ctx, []interface{}{roles[0]}, nil))

	changes, err := pr.Sync(ctx, []interface{}{roles[1], roles[2]})
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, changes.Attached)
	assert.Equal(t, []string{"1"}, changes.Detached)
	assert.Empty(t, changes.Updated)

	ids, err := pr.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{int64(2), int64(3)}, ids)

	// idempotent
	changes, err = pr.Sync(ctx, []interface{}{roles[1], roles[2]})
	require.NoError(t, err)
	assert.Empty(t, changes.Attached)
	assert.Empty(t, changes.Detached)

	// attributes for an already linked id are updated
	changes, err = pr.SyncWith(ctx, []PivotEntry{
		{ID: roles[1], Attributes: map[string]interface{}{"expires_at": "2030-01-01"}},
		{ID: roles[2]},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, changes.Updated)
	assert.Empty(t, changes.Attached)

	// other parents' links are untouched
	ids, err = otherRoles.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1)}, ids)

	related, err := pr.Get(ctx)
	require.NoError(t, err)
	require.Len(t, related, 2)
	for _, r := range related {
		pivot := r.Pivot()
		require.NotNil(t, pivot)
		assert.Equal(t, p.Key(), pivot["user_id"])
		if r.Key() == int64(2) {
			assert.Equal(t, "2030-01-01", pivot["expires_at"])
		}
		assert.NotNil(t, pivot["created_at"])
	}
}

func TestBelongsToMany_SyncWithoutDetaching(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	roles := seedRoles(t, env)
	p := env.create(t, "User", map[string]interface{}{"name": "P"})
	pr, err := p.BelongsToMany("roles")
	require.NoError(t, err)
	require.NoError(t, pr.Attach(ctx, []interface{}{roles[0]}, nil))

	changes, err := pr.SyncWithoutDetaching(ctx, []PivotEntry{{ID: roles[2]}})
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, changes.Attached)
	assert.Empty(t, changes.Detached)

	ids, err := pr.IDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestBelongsToMany_DetachAndToggle(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	roles := seedRoles(t, env)
	p := env.create(t, "User", map[string]interface{}{"name": "P"})
	pr, err := p.BelongsToMany("roles")
	require.NoError(t, err)

	require.NoError(t, pr.Attach(ctx, roles, map[string]interface{}{"expires_at": "2031-01-01"}))

	n, err := pr.Detach(ctx, roles[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	changes, err := pr.Toggle(ctx, []interface{}{roles[0], roles[1]})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, changes.Attached)
	assert.Equal(t, []string{"2"}, changes.Detached)

	ids, err := pr.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{int64(1), int64(3)}, ids)

	n, err = pr.Detach(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBelongsToMany_EagerLoadWithPivot(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	roles := seedRoles(t, env)
	a := env.create(t, "User", map[string]interface{}{"name": "A"})
	b := env.create(t, "User", map[string]interface{}{"name": "B"})

	ar, _ := a.BelongsToMany("roles")
	br, _ := b.BelongsToMany("roles")
	require.NoError(t, ar.Attach(ctx, []interface{}{roles[0], roles[1]}, map[string]interface{}{"expires_at": "2030-01-01"}))
	require.NoError(t, br.Attach(ctx, []interface{}{roles[1]}, nil))
	env.reset()

	users, err := env.m.Query("User").With("roles").OrderBy("users.id", "asc").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, env.queries())

	aRoles, _ := users[0].Relation("roles")
	require.Len(t, aRoles.([]*Entity), 2)
	assert.Equal(t, "2030-01-01", aRoles.([]*Entity)[0].Pivot()["expires_at"])
	_, leaked := aRoles.([]*Entity)[0].Attributes()["pivot_user_id"]
	assert.False(t, leaked)

	bRoles, _ := users[1].Relation("roles")
	require.Len(t, bRoles.([]*Entity), 1)
	assert.Equal(t, "editor", bRoles.([]*Entity)[0].Get("name"))
	assert.Contains(t, bRoles.([]*Entity)[0].ToMap(), PivotKey)
}

func TestBelongsToMany_WrongKind(t *testing.T) {
	env := setup(t, nil)
	u := env.create(t, "User", map[string]interface{}{"name": "A"})

	_, err := u.BelongsToMany("posts")
	assert.True(t, errors.Is(err, ErrInvalidRelation))
}

func TestRelationQuery(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()
	p1, _ := seedUsersWithPosts(t, env)

	q, err := p1.RelationQuery("posts")
	require.NoError(t, err)
	count, err := q.Where("posts.title", query.OpEqual, "c2").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
