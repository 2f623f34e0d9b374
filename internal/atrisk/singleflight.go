package atrisk

import (
	"context"

	"golang.org/x/sync/singleflight"
)

var projectGroup singleflight.Group

func singleflightProject(ctx context.Context, key string, fn func(context.Context) ([]Product, error)) ([]Product, error) {
	resultChan := projectGroup.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		products, _ := res.Val.([]Product)
		return products, nil
	}
}
