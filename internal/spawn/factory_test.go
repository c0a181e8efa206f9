package spawn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/instancer/internal/world"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	f := NewFactory(world.NewIDGenerator())
	require.NoError(t, RegisterDefaults(f))
	return f
}

func TestFactory_Create(t *testing.T) {
	f := newTestFactory(t)

	door, err := f.Create("Door")
	require.NoError(t, err)
	assert.Equal(t, "Door", door.ClassType())
	assert.Equal(t, "Door", door.Name(), "name defaults to the class type")
	assert.Equal(t, KindStatic, door.Kind())
	assert.False(t, door.IsActive(), "created entities start inactive")
	assert.True(t, door.Persist())
	state, ok := door.Prop("state")
	assert.True(t, ok)
	assert.Equal(t, "closed", state)

	guard, err := f.Create("Guard")
	require.NoError(t, err)
	assert.Equal(t, KindMob, guard.Kind())
	assert.NotEqual(t, door.ObjectID(), guard.ObjectID())
	assert.GreaterOrEqual(t, guard.ObjectID(), world.FirstObjectID)
}

func TestFactory_UnknownClass(t *testing.T) {
	f := newTestFactory(t)

	_, err := f.Create("Dragon")
	assert.True(t, errors.Is(err, ErrUnknownClass))

	// Регистр имеет значение.
	_, err = f.Create("guard")
	assert.True(t, errors.Is(err, ErrUnknownClass))
}

func TestFactory_Register(t *testing.T) {
	f := NewFactory(world.NewIDGenerator())

	assert.ErrorIs(t, f.Register(Class{Type: ""}), ErrInvalidClass)

	props := map[string]string{"hp": "100"}
	var initCalls int
	require.NoError(t, f.Register(Class{
		Type: "Wolf", Kind: KindMob, Name: "Grey Wolf", Props: props,
		Init: func(e *Entity) { initCalls++; e.SetProp("pack", "north") },
	}))
	props["hp"] = "1" // класс хранит свою копию

	assert.ErrorIs(t, f.Register(Class{Type: "Wolf"}), ErrDuplicateClass)
	assert.True(t, f.Has("Wolf"))
	assert.Equal(t, []string{"Wolf"}, f.Classes())

	e, err := f.Create("Wolf")
	require.NoError(t, err)
	assert.Equal(t, 1, initCalls)
	assert.Equal(t, "Grey Wolf", e.Name())
	assert.Equal(t, map[string]string{"hp": "100", "pack": "north"}, e.Props())

	// Props у двух сущностей независимы.
	e.SetProp("hp", "5")
	e2, err := f.Create("Wolf")
	require.NoError(t, err)
	hp, _ := e2.Prop("hp")
	assert.Equal(t, "100", hp)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in     string
		want   Kind
		wantOK bool
	}{
		{"static", KindStatic, true},
		{"", KindStatic, true},
		{"mob", KindMob, true},
		{"boss", KindStatic, false},
	}
	for _, tt := range tests {
		got, ok := ParseKind(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseKind(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
	assert.Equal(t, "mob", KindMob.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
