package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Lineage(t *testing.T) {
	assert.Equal(t, []Kind{KindGroup, KindTask, KindMeasure, KindMemo}, KindGroup.Lineage())
	assert.Equal(t, []Kind{KindMeasure, KindMemo}, KindMeasure.Lineage())
	assert.Equal(t, []Kind{KindNote}, KindNote.Lineage())
	assert.Equal(t, []Kind{KindGroup, KindNote, KindTarget}, Roots())
	assert.Equal(t, KindTask, KindMeasure.Parent())
	assert.Empty(t, KindTarget.Children())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("memo")
	require.NoError(t, err)
	assert.Equal(t, KindMemo, k)

	_, err = ParseKind("diary")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		wantErr string
	}{
		{
			name:   "valid group",
			entity: &Group{Title: "Serve", Color: ColorBlue},
		},
		{
			name:    "group without title",
			entity:  &Group{Color: ColorBlue},
			wantErr: "title is required",
		},
		{
			name:    "group with unknown color",
			entity:  &Group{Title: "Serve", Color: "teal"},
			wantErr: "invalid color",
		},
		{
			name:    "task priority out of range",
			entity:  &Task{Title: "Toss", GroupID: "g", Priority: 3},
			wantErr: "priority must be between 0 and 2",
		},
		{
			name:    "measure without task",
			entity:  &Measure{Title: "Lower toss"},
			wantErr: "task_id is required",
		},
		{
			name:    "blank memo",
			entity:  &Memo{Detail: "  ", MeasureID: "m"},
			wantErr: "detail is required",
		},
		{
			name:    "practice note without date",
			entity:  &Note{NoteKind: NoteKindPractice},
			wantErr: "date is required",
		},
		{
			name:    "second free note",
			entity:  &Note{Meta: Meta{ID: "other"}, NoteKind: NoteKindFree},
			wantErr: "only one free note",
		},
		{
			name:   "reserved free note",
			entity: &Note{Meta: Meta{ID: FreeNoteID}, NoteKind: NoteKindFree},
		},
		{
			name:    "monthly target without month",
			entity:  &Target{Title: "Win", Year: 2026},
			wantErr: "month must be between 1 and 12",
		},
		{
			name:   "yearly target",
			entity: &Target{Title: "Win", Year: 2026, IsYearly: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entity.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetDefaults(t *testing.T) {
	task := &Task{Title: "Toss"}
	task.SetDefaults()
	assert.Equal(t, UncategorizedGroupID, task.GroupID)

	target := &Target{Title: "Win", Year: 2026, Month: 4, IsYearly: true}
	target.SetDefaults()
	assert.Zero(t, target.Month)

	note := &Note{}
	note.SetDefaults()
	assert.Equal(t, NoteKindPractice, note.NoteKind)
	assert.Equal(t, WeatherSunny, note.Weather)
}

func TestEncodeDecode_KeepsMetaOutOfPayload(t *testing.T) {
	now := Stamp(time.Now())
	task := &Task{
		Meta:     Meta{ID: "t1", CreatedAt: now, UpdatedAt: now},
		Title:    "Toss",
		GroupID:  "g1",
		Order:    3,
		Priority: 2,
	}

	row, err := Encode(task)
	require.NoError(t, err)
	assert.Equal(t, KindTask, row.Kind)
	assert.Equal(t, "g1", row.ParentID)
	assert.Equal(t, 3, row.SortOrder)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(row.Payload, &payload))
	assert.NotContains(t, payload, "ID")
	assert.NotContains(t, payload, "order")

	var got Task
	require.NoError(t, Decode(row, &got))
	assert.Equal(t, *task, got)

	assert.Error(t, Decode(row, &Group{}))
}

func TestAfter_StrictlyIncreasing(t *testing.T) {
	prev := Stamp(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))

	assert.True(t, After(prev.Add(time.Second), prev).Equal(prev.Add(time.Second)))
	assert.True(t, After(prev, prev).Equal(prev.Add(time.Microsecond)))
	assert.True(t, After(prev.Add(-time.Hour), prev).Equal(prev.Add(time.Microsecond)))
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 5, 1, 10, 0, 0, 123456789, time.FixedZone("JST", 9*3600))
	out, err := ParseTime(FormatTime(in))
	require.NoError(t, err)
	assert.True(t, out.Equal(Stamp(in)))
	assert.Equal(t, "2026-05-01T01:00:00.123456Z", FormatTime(in))
}

func TestRow_SameContent(t *testing.T) {
	now := Stamp(time.Now())
	a := &Row{Kind: KindGroup, ID: "g", CreatedAt: now, UpdatedAt: now, Payload: json.RawMessage(`{"title":"A","color":"red"}`)}
	b := a.Clone()
	b.Payload = json.RawMessage(`{"color": "red", "title": "A"}`)
	assert.True(t, a.SameContent(b))

	b.Payload = json.RawMessage(`{"color":"red","title":"B"}`)
	assert.False(t, a.SameContent(b))

	c := a.Clone()
	c.Tombstone(now.Add(time.Second))
	assert.False(t, a.SameContent(c))
	assert.False(t, a.IsDeleted)
}

func TestReservedIDs(t *testing.T) {
	assert.NotEqual(t, UncategorizedGroupID, FreeNoteID)
	assert.True(t, IsReserved(KindGroup, UncategorizedGroupID))
	assert.True(t, IsReserved(KindNote, FreeNoteID))
	assert.False(t, IsReserved(KindTask, UncategorizedGroupID))
}
