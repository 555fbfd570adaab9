package property_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/propsrv/internal/property"
)

// recorder counts handler invocations per token.
type recorder struct {
	calls []property.Call
	get   func(call property.Call) ([]byte, error)
	fail  error
}

func (r *recorder) Invoke(call property.Call) ([]byte, error) {
	r.calls = append(r.calls, call)
	if r.fail != nil {
		return nil, r.fail
	}
	if call.Kind == property.CallGet && r.get != nil {
		return r.get(call)
	}
	return nil, nil
}

type sinkErrors []error

func (s *sinkErrors) sink(_ *property.Property, err error) { *s = append(*s, err) }

func le32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func TestWidgetScenario(t *testing.T) {
	reg := property.NewRegistrator("Widget", property.SideServer, nil, nil)
	count := mustRegister(t, reg, "uint32", "Count", property.Public, property.Options{Default: property.Int(0)})
	label := mustRegister(t, reg, "string", "Label", property.Protected, property.Options{})
	reg.FinishRegistration()

	props := property.New(reg, nil)
	assert.Equal(t, uint32(0), property.Get[uint32](props, count))
	assert.Equal(t, "", property.GetText(props, label))

	require.NoError(t, property.Set[uint32](props, count, 5))

	whole, bufs := props.Store(false)
	require.Len(t, bufs, 1)
	assert.Equal(t, reg.PublicSize(), len(bufs[0]))
	assert.Equal(t, le32(5), bufs[0][:4])
	assert.Equal(t, len(bufs[0]), whole)

	_, bufs = props.Store(true)
	require.Len(t, bufs, 2)
	assert.Equal(t, le32(5), bufs[0][:4])
	assert.Empty(t, bufs[1])
}

func TestSetNoOpSuppression(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	hp := mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
	name := mustRegister(t, reg, "string", "Name", property.Public, property.Options{})
	items := mustRegister(t, reg, "array<uint16>", "Items", property.Public, property.Options{})
	rec := &recorder{}
	reg.SetInvoker(rec)
	require.NoError(t, reg.AddSetCallback("Hp", 1))
	require.NoError(t, reg.AddSetCallback("Name", 2))
	require.NoError(t, reg.AddSetCallback("Items", 3))
	sends := 0
	reg.SetNativeSendCallback(func(*property.Properties, *property.Property) { sends++ })
	reg.FinishRegistration()

	props := property.New(reg, nil)
	require.NoError(t, property.Set(props, hp, property.Get[int32](props, hp)))
	require.NoError(t, property.SetText(props, name, property.GetText(props, name)))
	require.NoError(t, property.SetList(props, items, property.GetList[uint16](props, items)))
	assert.Empty(t, rec.calls)
	assert.Zero(t, sends)

	require.NoError(t, property.Set[int32](props, hp, 7))
	require.NoError(t, property.SetText(props, name, "Rat"))
	require.NoError(t, property.SetList(props, items, []uint16{1, 2}))
	require.Len(t, rec.calls, 3)
	assert.Equal(t, 3, sends)

	require.NoError(t, property.Set(props, hp, property.Get[int32](props, hp)))
	require.NoError(t, property.SetText(props, name, property.GetText(props, name)))
	require.NoError(t, property.SetList(props, items, property.GetList[uint16](props, items)))
	assert.Len(t, rec.calls, 3)
	assert.Equal(t, 3, sends)

	call := rec.calls[1]
	assert.Equal(t, property.CallSet, call.Kind)
	assert.Equal(t, property.HandlerToken(2), call.Token)
	assert.Empty(t, call.OldValue)
	assert.Equal(t, []byte("Rat"), call.NewValue)
	assert.Equal(t, []uint16{1, 2}, property.GetList[uint16](props, items))
}

func TestSetClamps(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	lvl := mustRegister(t, reg, "int32", "Level", property.Public, property.Options{
		Default: property.Int(15), Min: property.Int(10), Max: property.Int(20),
	})
	speed := mustRegister(t, reg, "float", "Speed", property.Public, property.Options{Max: property.Float(2.5)})
	rec := &recorder{}
	reg.SetInvoker(rec)
	require.NoError(t, reg.AddSetCallback("Level", 1))
	reg.FinishRegistration()

	props := property.New(reg, nil)
	require.NoError(t, property.Set[int32](props, lvl, 5))
	assert.Equal(t, int32(10), property.Get[int32](props, lvl))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, le32(10), rec.calls[0].NewValue)
	assert.Equal(t, le32(15), rec.calls[0].OldValue)

	require.NoError(t, property.Set[int32](props, lvl, 3))
	assert.Len(t, rec.calls, 1, "clamped value equals the current one")

	require.NoError(t, property.Set[int32](props, lvl, 99))
	assert.Equal(t, int32(20), property.Get[int32](props, lvl))
	assert.Len(t, rec.calls, 2)

	require.NoError(t, property.Set[float32](props, speed, 7))
	assert.Equal(t, float32(2.5), property.Get[float32](props, speed))
}

func TestCloneFromSkipsCallbacks(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	hp := mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
	name := mustRegister(t, reg, "string", "Name", property.PrivateCommon, property.Options{})
	rec := &recorder{}
	reg.SetInvoker(rec)
	require.NoError(t, reg.AddSetCallback("Hp", 1))
	require.NoError(t, reg.AddSetCallback("Name", 2))
	nativeCalls := 0
	require.NoError(t, reg.SetNativeSetCallback("Hp", func(*property.Properties, *property.Property, []byte, []byte) { nativeCalls++ }))
	reg.FinishRegistration()

	src := property.New(reg, nil)
	require.NoError(t, property.Set[int32](src, hp, 40))
	require.NoError(t, property.SetText(src, name, "Bob"))
	rec.calls = nil
	nativeCalls = 0

	dst := property.New(reg, nil)
	require.NoError(t, dst.CloneFrom(src))
	assert.Empty(t, rec.calls)
	assert.Zero(t, nativeCalls)
	assert.Equal(t, int32(40), property.Get[int32](dst, hp))
	assert.Equal(t, "Bob", property.GetText(dst, name))

	require.NoError(t, property.SetText(src, name, "Ann"))
	assert.Equal(t, "Bob", property.GetText(dst, name))

	other := property.NewRegistrator("Item", property.SideServer, nil, nil)
	other.FinishRegistration()
	assert.ErrorIs(t, dst.CloneFrom(property.New(other, nil)), property.ErrRegistratorMismatch)
}

func TestStoreRestoreRoundTrip(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	hp := mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
	dir := mustRegister(t, reg, "uint8", "Dir", property.PublicModifiable, property.Options{})
	gold := mustRegister(t, reg, "int64", "Gold", property.Protected, property.Options{})
	secret := mustRegister(t, reg, "int32", "Secret", property.PrivateServer, property.Options{})
	name := mustRegister(t, reg, "string", "Name", property.Public, property.Options{})
	bag := mustRegister(t, reg, "uint32[]", "Bag", property.Protected, property.Options{})
	notes := mustRegister(t, reg, "string", "Notes", property.PrivateCommon, property.Options{})
	reg.FinishRegistration()

	src := property.New(reg, nil)
	require.NoError(t, property.Set[int32](src, hp, -12))
	require.NoError(t, property.Set[uint8](src, dir, 5))
	require.NoError(t, property.Set[int64](src, gold, 1<<40))
	require.NoError(t, property.Set[int32](src, secret, 77))
	require.NoError(t, property.SetText(src, name, "Rat"))
	require.NoError(t, property.SetList(src, bag, []uint32{9, 8, 7}))
	require.NoError(t, property.SetText(src, notes, "private"))

	t.Run("with protected", func(t *testing.T) {
		_, bufs := src.Store(true)
		require.Len(t, bufs, 3)
		dst := property.New(reg, nil)
		require.NoError(t, dst.Restore(true, bufs))

		assert.Equal(t, src.RawData(hp), dst.RawData(hp))
		assert.Equal(t, src.RawData(dir), dst.RawData(dir))
		assert.Equal(t, src.RawData(gold), dst.RawData(gold))
		assert.Equal(t, src.RawData(name), dst.RawData(name))
		assert.Equal(t, src.RawData(bag), dst.RawData(bag))
		assert.Equal(t, int32(0), property.Get[int32](dst, secret))
		assert.Empty(t, property.GetText(dst, notes))
	})

	t.Run("public only", func(t *testing.T) {
		_, bufs := src.Store(false)
		require.Len(t, bufs, 2)
		dst := property.New(reg, nil)
		require.NoError(t, dst.Restore(false, bufs))
		assert.Equal(t, int32(-12), property.Get[int32](dst, hp))
		assert.Equal(t, "Rat", property.GetText(dst, name))
		assert.Zero(t, property.Get[int64](dst, gold))
		assert.Nil(t, property.GetList[uint32](dst, bag))
	})

	t.Run("wrong shape", func(t *testing.T) {
		_, bufs := src.Store(false)
		dst := property.New(reg, nil)
		assert.ErrorIs(t, dst.Restore(true, bufs), property.ErrMalformedStream)
		bufs[0] = bufs[0][:3]
		assert.ErrorIs(t, dst.Restore(false, bufs), property.ErrMalformedStream)
	})

	t.Run("bad list size", func(t *testing.T) {
		_, bufs := src.Store(true)
		bufs[2] = []byte{1, 2, 3}
		dst := property.New(reg, nil)
		assert.ErrorIs(t, dst.Restore(true, bufs), property.ErrMalformedStream)
		assert.Zero(t, property.Get[int32](dst, hp), "nothing applied")
	})
}

func TestVirtualGetter(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	level := mustRegister(t, reg, "int32", "Level", property.VirtualPublic, property.Options{})
	title := mustRegister(t, reg, "string", "Title", property.VirtualProtected, property.Options{})
	mustRegister(t, reg, "int32", "Rank", property.VirtualPublic, property.Options{})
	var errs sinkErrors
	reg.SetErrorSink(errs.sink)
	require.NoError(t, reg.SetGetCallback("Level", 1))
	require.NoError(t, reg.SetGetCallback("Title", 2))
	assert.ErrorIs(t, reg.SetGetCallback("Missing", 3), property.ErrUnknownProperty)
	reg.FinishRegistration()
	owner := struct{ ID int }{ID: 42}
	props := property.New(reg, owner)

	t.Run("no invoker", func(t *testing.T) {
		errs = nil
		assert.Zero(t, property.Get[int32](props, level))
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], property.ErrHandlerFailed)
		assert.ErrorIs(t, errs[0], property.ErrNoInvoker)
	})

	t.Run("value", func(t *testing.T) {
		errs = nil
		rec := &recorder{get: func(call property.Call) ([]byte, error) {
			if call.Token == 2 {
				return []byte("Sir"), nil
			}
			assert.Equal(t, owner, call.Owner())
			return le32(12), nil
		}}
		reg.SetInvoker(rec)
		assert.Equal(t, int32(12), property.Get[int32](props, level))
		assert.Equal(t, "Sir", property.GetText(props, title))
		assert.Empty(t, errs)
	})

	t.Run("missing callback", func(t *testing.T) {
		errs = nil
		rank := reg.Find("Rank")
		assert.Zero(t, property.Get[int32](props, rank))
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], property.ErrGetCallbackMissing)
	})

	t.Run("recursion", func(t *testing.T) {
		errs = nil
		var inner int32 = -1
		reg.SetInvoker(property.InvokerFunc(func(call property.Call) ([]byte, error) {
			inner = property.Get[int32](call.Props, call.Property)
			return le32(5), nil
		}))
		assert.Equal(t, int32(5), property.Get[int32](props, level))
		assert.Zero(t, inner)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], property.ErrRecursiveCallback)

		errs = nil
		assert.Equal(t, int32(5), property.Get[int32](props, level), "guard is released")
	})

	t.Run("handler panic", func(t *testing.T) {
		errs = nil
		reg.SetInvoker(property.InvokerFunc(func(property.Call) ([]byte, error) { panic("script crashed") }))
		assert.Panics(t, func() { property.Get[int32](props, level) })

		reg.SetInvoker(property.InvokerFunc(func(property.Call) ([]byte, error) { return le32(8), nil }))
		assert.Equal(t, int32(8), property.Get[int32](props, level), "guard is released")
		assert.Empty(t, errs)
	})

	t.Run("handler failure", func(t *testing.T) {
		errs = nil
		reg.SetInvoker(&recorder{fail: errors.New("boom")})
		assert.Zero(t, property.Get[int32](props, level))
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], property.ErrHandlerFailed)
	})

	t.Run("wrong size", func(t *testing.T) {
		errs = nil
		reg.SetInvoker(property.InvokerFunc(func(property.Call) ([]byte, error) { return []byte{1}, nil }))
		assert.Zero(t, property.Get[int32](props, level))
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], property.ErrHandlerFailed)
	})

	t.Run("set without callbacks", func(t *testing.T) {
		assert.ErrorIs(t, property.Set[int32](props, level, 3), property.ErrSetCallbackMissing)
	})
}

func TestVirtualSetter(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	level := mustRegister(t, reg, "int32", "Level", property.VirtualPublic, property.Options{})
	rec := &recorder{}
	reg.SetInvoker(rec)
	require.NoError(t, reg.AddSetCallback("Level", 4))
	reg.FinishRegistration()

	props := property.New(reg, nil)
	require.NoError(t, property.Set[int32](props, level, 3))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, le32(3), rec.calls[0].NewValue)

	rec.fail = errors.New("nope")
	assert.ErrorIs(t, property.Set[int32](props, level, 4), property.ErrHandlerFailed)
}

func TestSendGate(t *testing.T) {
	t.Run("server", func(t *testing.T) {
		reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
		pub := mustRegister(t, reg, "int32", "Pub", property.Public, property.Options{})
		prot := mustRegister(t, reg, "int32", "Prot", property.Protected, property.Options{})
		priv := mustRegister(t, reg, "int32", "Priv", property.PrivateServer, property.Options{})
		var got []string
		reg.SetNativeSendCallback(func(_ *property.Properties, p *property.Property) { got = append(got, p.Name()) })
		reg.FinishRegistration()

		props := property.New(reg, nil)
		require.NoError(t, property.Set[int32](props, pub, 1))
		require.NoError(t, property.Set[int32](props, prot, 1))
		require.NoError(t, property.Set[int32](props, priv, 1))
		assert.Equal(t, []string{"Pub", "Prot"}, got)

		got = nil
		err := props.WithSendIgnore(pub, func() error {
			require.NoError(t, property.Set[int32](props, prot, 2))
			return property.Set[int32](props, pub, 2)
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Prot"}, got)
		assert.Equal(t, int32(2), property.Get[int32](props, pub))

		props.SetSendIgnore(pub)
		assert.Panics(t, func() { props.SetSendIgnore(prot) })
		props.ClearSendIgnore()
	})

	t.Run("client", func(t *testing.T) {
		reg := property.NewRegistrator("Critter", property.SideClient, nil, nil)
		pub := mustRegister(t, reg, "int32", "Pub", property.Public, property.Options{})
		mod := mustRegister(t, reg, "int32", "Mod", property.PublicModifiable, property.Options{})
		protMod := mustRegister(t, reg, "int32", "ProtMod", property.ProtectedModifiable, property.Options{})
		own := mustRegister(t, reg, "int32", "Own", property.PrivateClient, property.Options{})
		var got []string
		reg.SetNativeSendCallback(func(_ *property.Properties, p *property.Property) { got = append(got, p.Name()) })
		reg.FinishRegistration()

		props := property.New(reg, nil)
		assert.ErrorIs(t, property.Set[int32](props, pub, 1), property.ErrNotWritable)
		require.NoError(t, property.Set[int32](props, mod, 1))
		require.NoError(t, property.Set[int32](props, protMod, 1))
		require.NoError(t, property.Set[int32](props, own, 1))
		assert.Equal(t, []string{"Mod", "ProtMod"}, got)

		// Replicated writes bypass the writable check.
		require.NoError(t, props.SetRawData(pub, le32(9), true))
		assert.Equal(t, int32(9), property.Get[int32](props, pub))
		assert.Equal(t, []string{"Mod", "ProtMod"}, got)
	})

	t.Run("native revert skips send", func(t *testing.T) {
		reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
		hp := mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
		var got []string
		reg.SetNativeSendCallback(func(_ *property.Properties, p *property.Property) { got = append(got, p.Name()) })
		require.NoError(t, reg.SetNativeSetCallback("Hp", func(props *property.Properties, prop *property.Property, _, old []byte) {
			require.NoError(t, props.SetRawData(prop, old, false))
		}))
		reg.FinishRegistration()

		props := property.New(reg, nil)
		require.NoError(t, property.Set[int32](props, hp, 50))
		assert.Zero(t, property.Get[int32](props, hp))
		assert.Empty(t, got)
	})
}

func TestSetRawDataSizeMismatchPanics(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	hp := mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
	bag := mustRegister(t, reg, "array<int16>", "Bag", property.Public, property.Options{})
	reg.FinishRegistration()

	props := property.New(reg, nil)
	assert.Panics(t, func() { _ = props.SetRawData(hp, []byte{1, 2}, false) })
	assert.Panics(t, func() { _ = props.SetRawData(bag, []byte{1, 2, 3}, false) })
	assert.NotPanics(t, func() { _ = props.SetRawData(bag, []byte{1, 2, 3, 4}, false) })
	assert.Equal(t, []int16{0x0201, 0x0403}, property.GetList[int16](props, bag))
}

func TestTypedAccessErrors(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	hp := mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
	name := mustRegister(t, reg, "string", "Name", property.Public, property.Options{})
	fixed := mustRegister(t, reg, "int16", "Fixed", property.Public, property.Options{Const: true, Default: property.Int(3)})
	var errs sinkErrors
	reg.SetErrorSink(errs.sink)
	reg.FinishRegistration()

	props := property.New(reg, nil)
	assert.ErrorIs(t, property.Set[int64](props, hp, 1), property.ErrInvalidType)
	assert.ErrorIs(t, property.Set[int32](props, name, 1), property.ErrNotFixed)
	assert.ErrorIs(t, property.SetText(props, hp, "x"), property.ErrInvalidType)
	assert.ErrorIs(t, property.Set[int16](props, fixed, 4), property.ErrNotWritable)
	assert.Equal(t, int16(3), property.Get[int16](props, fixed))

	assert.Zero(t, property.Get[int8](props, hp))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], property.ErrInvalidType)
}

func TestValueAsInt(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	hp := mustRegister(t, reg, "int16", "Hp", property.Public, property.Options{Default: property.Int(-5)})
	speed := mustRegister(t, reg, "double", "Speed", property.Public, property.Options{Default: property.Float(1.75)})
	alive := mustRegister(t, reg, "bool", "Alive", property.Public, property.Options{})
	name := mustRegister(t, reg, "string", "Name", property.Public, property.Options{})
	reg.FinishRegistration()

	props := property.New(reg, nil)
	v, err := props.GetValueAsInt(hp.EnumValue())
	require.NoError(t, err)
	assert.Equal(t, int64(-5), v)

	v, err = props.GetValueAsInt(speed.EnumValue())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, props.SetValueAsInt(hp.EnumValue(), 300))
	assert.Equal(t, int16(300), property.Get[int16](props, hp))
	require.NoError(t, props.SetValueAsIntByName("Alive", 1))
	assert.True(t, property.Get[bool](props, alive))
	require.NoError(t, props.SetValueAsIntByName("Speed", 3))
	assert.Equal(t, 3.0, property.Get[float64](props, speed))

	_, err = props.GetValueAsInt(name.EnumValue())
	assert.ErrorIs(t, err, property.ErrNotFixed)
	assert.ErrorIs(t, props.SetValueAsIntByName("Mana", 1), property.ErrUnknownProperty)
	_, err = props.GetValueAsInt(0)
	assert.ErrorIs(t, err, property.ErrUnknownProperty)
}

func TestFindData(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	mustRegister(t, reg, "uint32", "Hp", property.Protected, property.Options{Default: property.Int(8)})
	mustRegister(t, reg, "string", "Name", property.Public, property.Options{})
	reg.FinishRegistration()

	props := property.New(reg, nil)
	data := props.FindData("Hp")
	require.Len(t, data, 4)
	assert.Equal(t, le32(8), data)

	binary.LittleEndian.PutUint32(data, 11)
	v, err := props.GetValueAsInt(reg.Find("Hp").EnumValue())
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	assert.Nil(t, props.FindData("Name"))
	assert.Nil(t, props.FindData("Mp"))
}

func TestRandomDefault(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	seed := mustRegister(t, reg, "uint64", "Seed", property.PrivateServer, property.Options{GenerateRandom: true})
	reg.FinishRegistration()

	seen := map[uint64]bool{}
	for i := 0; i < 4; i++ {
		seen[property.Get[uint64](property.New(reg, nil), seed)] = true
	}
	assert.Greater(t, len(seen), 1)
}
