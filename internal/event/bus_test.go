package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"sharad-cli/internal/character"
)

func TestBus_DrainPreservesOrder(t *testing.T) {
	bus := NewBus(4)

	require.NoError(t, bus.EmitCharacter(CharacterAdded{Sheet: character.Dummy(), Fallback: true}))
	require.NoError(t, bus.EmitUpdate(UpdateRequest{Tool: "update_skills", Character: "a"}))
	require.NoError(t, bus.EmitUpdate(UpdateRequest{Tool: "update_inventory", Character: "b"}))

	p := bus.Drain()
	require.Len(t, p.Characters, 1)
	require.True(t, p.Characters[0].Fallback)
	require.Equal(t, []string{"a", "b"}, []string{p.Updates[0].Character, p.Updates[1].Character})

	require.True(t, bus.Drain().Empty())
}

func TestBus_EmitFailsWhenFull(t *testing.T) {
	bus := NewBus(1)

	require.NoError(t, bus.EmitUpdate(UpdateRequest{Character: "a"}))
	require.ErrorIs(t, bus.EmitUpdate(UpdateRequest{Character: "b"}), ErrBusFull)
}

func TestBus_NilBus(t *testing.T) {
	var bus *Bus

	require.ErrorIs(t, bus.EmitCharacter(CharacterAdded{}), ErrNilBus)
	require.ErrorIs(t, bus.PublishImage(context.Background(), ImageReady{}), ErrNilBus)
	require.True(t, bus.Drain().Empty())
}

func TestBus_PublishImageHonoursContext(t *testing.T) {
	bus := NewBus(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, bus.PublishImage(ctx, ImageReady{JobID: "1"}))

	cancel()
	require.ErrorIs(t, bus.PublishImage(ctx, ImageReady{JobID: "2"}), context.Canceled)

	images := bus.DrainImages()
	require.Len(t, images, 1)
	require.Equal(t, "1", images[0].JobID)
}
