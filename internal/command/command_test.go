package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathakanu/nhacnho/internal/clock"
	"github.com/pathakanu/nhacnho/internal/model"
	"github.com/pathakanu/nhacnho/internal/parser"
)

var ref = time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)

func newInterpreter() *Interpreter {
	c := clock.Default()
	return NewInterpreter(parser.New(c, nil, parser.NewGenericFallback(c)))
}

func TestInterpretCreate(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Họp ngày 15/10 lúc 9h sáng", ref)
	require.NoError(t, err)

	create, ok := cmd.(Create)
	require.True(t, ok, "got %T", cmd)
	assert.Equal(t, KindCreate, create.Kind())
	assert.Equal(t, "Họp", create.Label)
	assert.Equal(t, time.Date(2024, 10, 15, 2, 0, 0, 0, time.UTC), create.DueAt)
	assert.Equal(t, model.RecurrenceNone, create.Recurrence)
	assert.Empty(t, create.Participants)
}

func TestInterpretCreateWithRecurrenceAndParticipant(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Chạy bộ với Nam lúc 6h sáng mỗi ngày", ref)
	require.NoError(t, err)

	create := cmd.(Create)
	assert.Equal(t, "Chạy bộ", create.Label)
	assert.Equal(t, model.RecurrenceDaily, create.Recurrence)
	assert.Equal(t, []string{"Nam"}, create.Participants)
}

func TestInterpretCreateUsesFallback(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Họp lúc 14:30", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 7, 30, 0, 0, time.UTC), cmd.(Create).DueAt)
}

func TestInterpretCreateWithoutTime(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Đi chợ", ref)
	assert.ErrorIs(t, err, ErrNoInstant)
	assert.Nil(t, cmd)
}

func TestInterpretCancel(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Hủy Họp ngày 15/10 lúc 9h sáng", ref)
	require.NoError(t, err)

	cancel, ok := cmd.(Cancel)
	require.True(t, ok, "got %T", cmd)
	assert.Equal(t, "Họp", cancel.Label)
	require.True(t, cancel.DueAt.Valid)
	assert.Equal(t, time.Date(2024, 10, 15, 2, 0, 0, 0, time.UTC), cancel.DueAt.Time)
}

func TestInterpretCancelWithoutTime(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "hủy Họp", ref)
	require.NoError(t, err)

	cancel := cmd.(Cancel)
	assert.Equal(t, "Họp", cancel.Label)
	assert.False(t, cancel.DueAt.Valid)
}

func TestInterpretCancelWinsOverReschedule(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Đổi Họp lúc 9h thành 10h, à thôi Hủy", ref)
	require.NoError(t, err)
	assert.Equal(t, KindCancel, cmd.Kind())
}

func TestInterpretKeywordsAreWholeWords(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Đi thủy cung lúc 9h", ref)
	require.NoError(t, err)
	assert.Equal(t, KindCreate, cmd.Kind())
	assert.Equal(t, "Đi thủy cung", cmd.(Create).Label)
}

func TestInterpretKeywordsInsidePunctuation(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	for _, text := range []string{
		"(Hủy) Họp ngày 15/10 lúc 9h sáng",
		"\"Hủy\" Họp ngày 15/10 lúc 9h sáng",
		"[hủy] Họp ngày 15/10 lúc 9h sáng",
	} {
		cmd, err := i.Interpret(context.Background(), text, ref)
		require.NoError(t, err, text)
		c, ok := cmd.(Cancel)
		require.True(t, ok, "%q routed to %T", text, cmd)
		assert.Equal(t, "Họp", c.Label, text)
		assert.True(t, c.DueAt.Valid, text)
	}

	cmd, err := i.Interpret(context.Background(), "(Đổi) Họp lúc 9h \"thành\" 10h", ref)
	require.NoError(t, err)
	assert.Equal(t, KindReschedule, cmd.Kind())
}

func TestInterpretReschedule(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Đổi Họp ngày 15/10 lúc 9h sáng thành ngày 16/10 lúc 10h sáng", ref)
	require.NoError(t, err)

	r, ok := cmd.(Reschedule)
	require.True(t, ok, "got %T", cmd)
	assert.Equal(t, "Họp", r.OldLabel)
	require.True(t, r.OldDueAt.Valid)
	assert.Equal(t, time.Date(2024, 10, 15, 2, 0, 0, 0, time.UTC), r.OldDueAt.Time)
	assert.Equal(t, time.Date(2024, 10, 16, 3, 0, 0, 0, time.UTC), r.NewDueAt)
}

func TestInterpretRescheduleWithoutNewTime(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Đổi Họp ngày 15/10 lúc 9h sáng thành hôm khác", ref)
	assert.ErrorIs(t, err, ErrNoInstant)
	assert.Nil(t, cmd)

	var ie *InstantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindReschedule, ie.Kind)
}

func TestInterpretEditWithoutSeparatorCreates(t *testing.T) {
	t.Parallel()
	i := newInterpreter()

	cmd, err := i.Interpret(context.Background(), "Đổi dầu xe lúc 8h", ref)
	require.NoError(t, err)
	assert.Equal(t, KindCreate, cmd.Kind())
	assert.Equal(t, "Đổi dầu xe", cmd.(Create).Label)
}
