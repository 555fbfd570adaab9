package schema

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/propsrv/internal/property"
)

// Binder resolves script function names to handler tokens and runs them.
type Binder interface {
	property.Invoker
	Bind(funcName string) (property.HandlerToken, error)
}

// Build registers every class of the schema for one side, binds callbacks
// and finishes registration. binder may be nil when no class declares
// callbacks.
func Build(s *Schema, side property.Side, binder Binder, log *zap.Logger) (map[string]*property.Registrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	types := s.Types()
	regs := make(map[string]*property.Registrator, len(s.Classes))

	for i := range s.Classes {
		c := &s.Classes[i]
		reg, err := buildClass(c, side, types, binder, log)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", c.Name, err)
		}
		regs[c.Name] = reg
	}
	return regs, nil
}

func buildClass(c *ClassDef, side property.Side, types property.TypeResolver, binder Binder, log *zap.Logger) (*property.Registrator, error) {
	reg := property.NewRegistrator(c.Name, side, types, log)

	for _, def := range c.Properties {
		if err := register(reg, def); err != nil {
			return nil, err
		}
	}
	for _, g := range c.Groups {
		reg.SetDefaults(property.Options{Group: g.Name, Min: g.Min.value(), Max: g.Max.value()})
		for _, def := range g.Properties {
			if err := register(reg, def); err != nil {
				return nil, err
			}
		}
		reg.SetDefaults(property.Options{})
	}

	if len(c.Callbacks) > 0 {
		if binder == nil {
			return nil, fmt.Errorf("callbacks declared but no script engine")
		}
		reg.SetInvoker(binder)
	}
	for _, cb := range c.Callbacks {
		if err := bindCallbacks(reg, binder, cb); err != nil {
			return nil, err
		}
	}

	reg.FinishRegistration()
	return reg, nil
}

func register(reg *property.Registrator, def PropertyDef) error {
	access, err := property.ParseAccess(def.Access)
	if err != nil {
		return fmt.Errorf("property %s: %w", def.Name, err)
	}
	_, err = reg.Register(def.Type, def.Name, access, property.Options{
		Group:          def.Group,
		GenerateRandom: def.Random,
		Const:          def.Const,
		Temporary:      def.Temporary,
		Default:        def.Default.value(),
		Min:            def.Min.value(),
		Max:            def.Max.value(),
	})
	return err
}

func bindCallbacks(reg *property.Registrator, binder Binder, cb CallbackDef) error {
	if cb.Get != "" {
		tok, err := binder.Bind(cb.Get)
		if err != nil {
			return fmt.Errorf("get callback of %s: %w", cb.Property, err)
		}
		if err := reg.SetGetCallback(cb.Property, tok); err != nil {
			return err
		}
	}
	for _, fn := range cb.Set {
		tok, err := binder.Bind(fn)
		if err != nil {
			return fmt.Errorf("set callback of %s: %w", cb.Property, err)
		}
		if err := reg.AddSetCallback(cb.Property, tok); err != nil {
			return err
		}
	}
	return nil
}
