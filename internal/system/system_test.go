package system

import (
	"context"
	gonet "net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/l1jgo/propsrv/internal/core/event"
	"github.com/l1jgo/propsrv/internal/net"
	"github.com/l1jgo/propsrv/internal/persist"
	"github.com/l1jgo/propsrv/internal/property"
	"github.com/l1jgo/propsrv/internal/replication"
	"github.com/l1jgo/propsrv/internal/world"
)

type fakeSaver struct {
	batches [][]persist.EntityRow
}

func (f *fakeSaver) SaveBatch(_ context.Context, rows []persist.EntityRow) error {
	f.batches = append(f.batches, rows)
	return nil
}

type fakeJournal struct {
	changes   []persist.Change
	processed []uuid.UUID
}

func (f *fakeJournal) Write(_ context.Context, changes []persist.Change) error {
	f.changes = append(f.changes, changes...)
	return nil
}

func (f *fakeJournal) MarkProcessed(_ context.Context, keys []uuid.UUID) error {
	f.processed = append(f.processed, keys...)
	return nil
}

func newTestState(t *testing.T) (*world.State, *property.Registrator) {
	t.Helper()
	reg := property.NewRegistrator("Critter", property.SideServer, nil, nil)
	for _, r := range []struct {
		typ, name string
		access    property.Access
		opts      property.Options
	}{
		{"int32", "Hp", property.Public, property.Options{}},
		{"string", "Name", property.Protected, property.Options{}},
		{"int32", "Buff", property.Public, property.Options{Temporary: true}},
	} {
		_, err := reg.Register(r.typ, r.name, r.access, r.opts)
		require.NoError(t, err)
	}
	reg.FinishRegistration()
	return world.NewState(map[string]*property.Registrator{"Critter": reg}, event.NewBus(), nil), reg
}

func TestPersistenceSystem(t *testing.T) {
	state, reg := newTestState(t)
	saver, journal := &fakeSaver{}, &fakeJournal{}
	events := NewEventDispatchSystem(state.Bus())
	sys := NewPersistenceSystem(state, saver, journal, zap.NewNop(), 2)

	a, err := state.Create("Critter")
	require.NoError(t, err)
	_, err = state.Create("Critter")
	require.NoError(t, err)

	require.NoError(t, property.Set[int32](a.Props, reg.Find("Hp"), 9))
	require.NoError(t, property.Set[int32](a.Props, reg.Find("Buff"), 4))

	events.Update(0)
	sys.Update(0)
	require.Len(t, journal.changes, 1)
	assert.Equal(t, "Hp", journal.changes[0].Property)
	assert.Equal(t, a.Key, journal.changes[0].EntityKey)
	assert.Empty(t, saver.batches)

	sys.Update(0)
	require.Len(t, saver.batches, 1)
	require.Len(t, saver.batches[0], 1)
	row := saver.batches[0][0]
	assert.Equal(t, a.Key, row.Key)
	assert.Equal(t, a.Props.Save(), row.Stream)
	assert.Equal(t, []uuid.UUID{a.Key}, journal.processed)
	assert.False(t, state.IsDirty(a.ID))

	assert.Equal(t, 2, sys.SaveAll())
}

func TestOutputSystemBroadcasts(t *testing.T) {
	state, reg := newTestState(t)
	store := net.NewSessionStore()
	local, remote := gonet.Pipe()
	sess := net.NewSession(local, 1, net.SessionOptions{InSize: 4, OutSize: 16, MaxFrameSize: 1 << 16}, zap.NewNop())
	sess.Start()
	defer sess.Close()
	store.Add(sess)

	events := NewEventDispatchSystem(state.Bus())
	out := NewOutputSystem(state, store, false)

	e, err := state.Create("Critter")
	require.NoError(t, err)
	require.NoError(t, property.Set[int32](e.Props, reg.Find("Hp"), 5))
	require.NoError(t, property.SetText(e.Props, reg.Find("Name"), "hidden"))

	out.Update(0) // delta only; the spawn event is delivered next tick
	events.Update(0)
	out.Update(0)

	remote.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ops []byte
	for i := 0; i < 2; i++ {
		frame, err := net.ReadFrame(remote, 1<<16)
		require.NoError(t, err)
		ops = append(ops, frame[0])
	}
	assert.Equal(t, []byte{replication.OpDelta, replication.OpSnapshot}, ops)
}

func TestCleanupSystem(t *testing.T) {
	state, _ := newTestState(t)
	e, err := state.Create("Critter")
	require.NoError(t, err)
	state.Destroy(e.ID)

	NewCleanupSystem(state).Update(0)
	assert.Nil(t, state.Get(e.ID))
}
