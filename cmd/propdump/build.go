package main

import (
	"fmt"

	"github.com/l1jgo/propsrv/internal/property"
	"github.com/l1jgo/propsrv/internal/schema"
)

// nopBinder accepts every callback name. Dumps never run handlers, and
// virtual getters read as zero.
type nopBinder struct {
	next property.HandlerToken
}

func (b *nopBinder) Bind(string) (property.HandlerToken, error) {
	b.next++
	return b.next, nil
}

func (b *nopBinder) Invoke(property.Call) ([]byte, error) {
	return nil, property.ErrNoInvoker
}

func buildLayouts(opts *rootOptions) (*schema.Schema, map[string]*property.Registrator, error) {
	side, err := property.ParseSide(opts.side)
	if err != nil {
		return nil, nil, err
	}
	sch, err := schema.Load(opts.schemaPath)
	if err != nil {
		return nil, nil, err
	}
	regs, err := schema.Build(sch, side, &nopBinder{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build layouts: %w", err)
	}
	return sch, regs, nil
}
