package model

import (
	"fmt"

	"go.uber.org/zap"
)

func zapType(t *Type) zap.Field {
	return zap.String("type", t.desc.Name)
}

func zapKey(key interface{}) zap.Field {
	return zap.String("key", fmt.Sprint(key))
}

func zapError(err error) zap.Field {
	return zap.Error(err)
}
