package property_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/propsrv/internal/property"
)

func mustRegister(t *testing.T, reg *property.Registrator, typeName, name string, access property.Access, opts property.Options) *property.Property {
	t.Helper()
	prop, err := reg.Register(typeName, name, access, opts)
	require.NoError(t, err)
	return prop
}

func offset(t *testing.T, prop *property.Property) int {
	t.Helper()
	off, ok := prop.PodOffset()
	require.True(t, ok, "%s has no arena offset", prop)
	return off
}

func TestRegisterPacksTiers(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	a := mustRegister(t, reg, "uint8", "A", property.Public, property.Options{})
	b := mustRegister(t, reg, "uint32", "B", property.Public, property.Options{})
	c := mustRegister(t, reg, "int16", "C", property.PublicModifiable, property.Options{})
	d := mustRegister(t, reg, "bool", "D", property.Public, property.Options{})
	e := mustRegister(t, reg, "int64", "E", property.Public, property.Options{})
	p := mustRegister(t, reg, "int32", "P", property.Protected, property.Options{})
	q := mustRegister(t, reg, "uint16", "Q", property.PrivateServer, property.Options{})
	r := mustRegister(t, reg, "double", "R", property.PrivateCommon, property.Options{})
	reg.FinishRegistration()

	assert.Equal(t, 0, offset(t, a))
	assert.Equal(t, 4, offset(t, b))
	assert.Equal(t, 2, offset(t, c))
	assert.Equal(t, 1, offset(t, d))
	assert.Equal(t, 8, offset(t, e))

	assert.Equal(t, 16, reg.PublicSize())
	assert.Equal(t, 8, reg.ProtectedSize())
	assert.Equal(t, 16, reg.PrivateSize())
	assert.Equal(t, 40, reg.WholePodSize())

	assert.Equal(t, 16, offset(t, p))
	assert.Equal(t, 24, offset(t, q))
	assert.Equal(t, 32, offset(t, r))
	assert.Equal(t, 8, reg.SerializedCount())
}

func TestFinishRegistrationTierOrdering(t *testing.T) {
	reg := property.NewRegistrator("Item", property.SideServer, nil, nil)
	accesses := []property.Access{property.PrivateCommon, property.Protected, property.Public, property.ProtectedModifiable, property.PrivateServer}
	types := []string{"uint8", "int16", "int32", "int64", "float"}
	for i := 0; i < 30; i++ {
		mustRegister(t, reg, types[(i*7)%len(types)], string(rune('a'+i%26))+string(rune('A'+i/26)), accesses[i%len(accesses)], property.Options{})
	}
	reg.FinishRegistration()

	pub, prot := reg.PublicSize(), reg.ProtectedSize()
	used := make([]bool, reg.WholePodSize())
	for _, prop := range reg.Properties() {
		off := offset(t, prop)
		switch {
		case prop.Access().IsProtected():
			assert.GreaterOrEqual(t, off, pub, prop.Name())
			assert.Less(t, off, pub+prot, prop.Name())
		case prop.Access().IsPrivate():
			assert.GreaterOrEqual(t, off, pub+prot, prop.Name())
		default:
			assert.Less(t, off, pub, prop.Name())
		}
		for i := off; i < off+prop.Size(); i++ {
			require.False(t, used[i], "byte %d used twice", i)
			used[i] = true
		}
	}
	assert.Zero(t, pub%8)
	assert.Zero(t, prot%8)
	assert.Zero(t, reg.PrivateSize()%8)
}

func TestRegisterErrors(t *testing.T) {
	types := property.NewTypeTable()
	types.AddFixed("vec3", 12, property.NumberFloat)
	types.AddHandle("Critter")

	reg := property.NewRegistrator("Map", property.SideServer, types, nil)
	mustRegister(t, reg, "int32", "Width", property.Public, property.Options{})

	tests := []struct {
		name     string
		typeName string
		prop     string
		access   property.Access
		want     error
	}{
		{"duplicate name", "int32", "Width", property.Public, property.ErrDuplicateName},
		{"unknown type", "quaternion", "Rot", property.Public, property.ErrInvalidType},
		{"list of text", "array<string>", "Names", property.Public, property.ErrInvalidType},
		{"handle suffix", "Item@", "Owner", property.Public, property.ErrHandleTypeNotAllowed},
		{"registered handle", "Critter", "Leader", property.Public, property.ErrHandleTypeNotAllowed},
		{"handle list", "Critter[]", "Members", property.Public, property.ErrHandleTypeNotAllowed},
		{"odd size", "vec3", "Pos", property.Public, property.ErrSizeNotSupported},
		{"two tiers", "int32", "Both", property.Public | property.Protected, property.ErrInvalidAccess},
		{"no tier", "int32", "None", 0, property.ErrInvalidAccess},
		{"empty name", "int32", "", property.Public, property.ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Register(tt.typeName, tt.prop, tt.access, property.Options{})
			require.ErrorIs(t, err, tt.want)

			var regErr *property.RegistrationError
			require.True(t, errors.As(err, &regErr))
			assert.Equal(t, "Map", regErr.Class)
			assert.Equal(t, tt.prop, regErr.Property)
		})
	}

	assert.Equal(t, 1, reg.Count())

	reg.FinishRegistration()
	_, err := reg.Register("int32", "Height", property.Public, property.Options{})
	assert.ErrorIs(t, err, property.ErrRegistrationFinished)
	assert.Panics(t, reg.FinishRegistration)
}

func TestRegisterSideRules(t *testing.T) {
	t.Run("server", func(t *testing.T) {
		reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
		clientOnly := mustRegister(t, reg, "int32", "ClientOnly", property.PrivateClient, property.Options{})
		serverOnly := mustRegister(t, reg, "int32", "ServerOnly", property.PrivateServer, property.Options{})
		pub := mustRegister(t, reg, "int32", "Pub", property.Public, property.Options{})
		fixed := mustRegister(t, reg, "int32", "Fixed", property.Public, property.Options{Const: true})

		assert.False(t, clientOnly.IsReadable())
		assert.False(t, clientOnly.IsWritable())
		assert.False(t, clientOnly.HasStorage())
		assert.True(t, serverOnly.IsReadable())
		assert.True(t, serverOnly.HasStorage())
		assert.True(t, pub.IsWritable())
		assert.True(t, fixed.IsReadable())
		assert.False(t, fixed.IsWritable())
	})

	t.Run("client", func(t *testing.T) {
		reg := property.NewRegistrator("Critter", property.SideClient, nil, nil)
		clientOnly := mustRegister(t, reg, "int32", "ClientOnly", property.PrivateClient, property.Options{})
		serverOnly := mustRegister(t, reg, "string", "ServerOnly", property.PrivateServer, property.Options{})
		pub := mustRegister(t, reg, "int32", "Pub", property.Public, property.Options{})
		pubMod := mustRegister(t, reg, "int32", "PubMod", property.PublicModifiable, property.Options{})
		prot := mustRegister(t, reg, "int32", "Prot", property.Protected, property.Options{})
		common := mustRegister(t, reg, "int32", "Common", property.PrivateCommon, property.Options{})

		assert.True(t, clientOnly.IsWritable())
		assert.False(t, serverOnly.IsReadable())
		assert.False(t, serverOnly.HasStorage())
		assert.True(t, pub.IsReadable())
		assert.False(t, pub.IsWritable())
		assert.True(t, pubMod.IsWritable())
		assert.False(t, prot.IsWritable())
		assert.True(t, common.IsWritable())
		assert.Zero(t, reg.ComplexCount())
	})

	t.Run("virtual has no storage", func(t *testing.T) {
		reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
		v := mustRegister(t, reg, "int32", "Level", property.VirtualPublic, property.Options{})
		assert.True(t, v.IsVirtual())
		assert.False(t, v.HasStorage())
		reg.FinishRegistration()
		assert.Zero(t, reg.WholePodSize())
		assert.Zero(t, reg.SerializedCount())
	})
}

func TestRegistratorLookup(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	reg.SetDefaults(property.Options{Group: "Stats", Min: property.Int(0), Max: property.Int(100)})
	hp := mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
	mp := mustRegister(t, reg, "int32", "Mp", property.Public, property.Options{Max: property.Int(50)})
	reg.SetDefaults(property.Options{})
	name := mustRegister(t, reg, "string", "Name", property.Public, property.Options{})
	reg.FinishRegistration()

	assert.Same(t, hp, reg.Find("Hp"))
	assert.Same(t, mp, reg.Get(1))
	assert.Nil(t, reg.Find("Sp"))
	assert.Nil(t, reg.Get(5))
	assert.Same(t, name, reg.FindByEnum(name.EnumValue()))
	assert.NotEqual(t, hp.EnumValue(), mp.EnumValue())

	assert.Equal(t, []*property.Property{hp, mp}, reg.Group("Stats"))
	assert.Empty(t, name.Group())
	hasMin, hasMax := mp.Bounds()
	assert.True(t, hasMin)
	assert.True(t, hasMax)
	assert.Equal(t, "Critter::Hp", hp.String())

	idx, ok := name.ComplexIndex()
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestFingerprint(t *testing.T) {
	build := func(extra bool) *property.Registrator {
		reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
		mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
		mustRegister(t, reg, "string", "Name", property.Protected, property.Options{})
		if extra {
			mustRegister(t, reg, "int8", "Dir", property.Public, property.Options{})
		}
		reg.FinishRegistration()
		return reg
	}
	assert.Equal(t, build(false).Fingerprint(), build(false).Fingerprint())
	assert.NotEqual(t, build(false).Fingerprint(), build(true).Fingerprint())
}

func TestSharedFingerprintAcrossSides(t *testing.T) {
	build := func(side property.Side) *property.Registrator {
		reg := property.NewRegistrator("Critter", side, nil, nil)
		mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{})
		mustRegister(t, reg, "int64", "Secret", property.PrivateServer, property.Options{})
		mustRegister(t, reg, "string", "Name", property.ProtectedModifiable, property.Options{})
		reg.FinishRegistration()
		return reg
	}
	server, client := build(property.SideServer), build(property.SideClient)
	assert.NotEqual(t, server.Fingerprint(), client.Fingerprint())
	assert.Equal(t, server.SharedFingerprint(), client.SharedFingerprint())
}

func TestLayouts(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	mustRegister(t, reg, "string", "Name", property.Public, property.Options{})
	mustRegister(t, reg, "int32", "Hp", property.Protected, property.Options{})
	mustRegister(t, reg, "int8", "Dir", property.Public, property.Options{})
	mustRegister(t, reg, "int32", "Level", property.VirtualPublic, property.Options{})
	reg.FinishRegistration()

	layouts := reg.Layouts()
	require.Len(t, layouts, 3)
	assert.Equal(t, "Dir", layouts[0].Name)
	assert.Equal(t, "Hp", layouts[1].Name)
	assert.Equal(t, 8, layouts[1].PodOffset)
	assert.Equal(t, "protected", layouts[1].Tier)
	assert.Equal(t, "Name", layouts[2].Name)
	assert.Equal(t, -1, layouts[2].PodOffset)
}

func TestArenaPool(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	hp := mustRegister(t, reg, "int32", "Hp", property.Public, property.Options{Default: property.Int(10)})
	reg.FinishRegistration()

	props := property.New(reg, nil)
	require.NoError(t, property.Set[int32](props, hp, 99))
	props.Release()
	assert.Equal(t, 1, reg.PooledArenas())

	again := property.New(reg, nil)
	assert.Zero(t, reg.PooledArenas())
	assert.Equal(t, int32(10), property.Get[int32](again, hp))
}

func TestNewBeforeFinishPanics(t *testing.T) {
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	assert.Panics(t, func() { property.New(reg, nil) })
}
