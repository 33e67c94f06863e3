package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	for _, in := range []string{
		"2024-03-01T09:30:00Z",
		"2024-03-01T09:30:00.000Z",
		"2024-03-01T10:30:00+01:00",
	} {
		ts, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, ts.Equal(want), in)
	}

	local, err := ParseTimestamp("2024-03-01T09:30")
	require.NoError(t, err)
	assert.True(t, local.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)))

	empty, err := ParseTimestamp("  ")
	assert.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseTimestamp("next tuesday")
	assert.Error(t, err)
}

func TestTimestamp_JSON(t *testing.T) {
	var v struct {
		A *Timestamp `json:"a"`
		B *Timestamp `json:"b"`
		C *Timestamp `json:"c"`
		D *Timestamp `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2024-03-01T09:30:00.123456Z","b":null,"c":"","d":1709285400000}`), &v))

	require.NotNil(t, v.A)
	assert.Equal(t, "2024-03-01T09:30:00.123Z", v.A.String(), "held at millisecond precision")
	assert.Nil(t, v.B)
	require.NotNil(t, v.C)
	assert.True(t, v.C.IsZero())
	require.NotNil(t, v.D)
	assert.True(t, v.D.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"2024-03-01T09:30:00.123Z","b":null,"c":null,"d":"2024-03-01T09:30:00.000Z"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &v))
}

func TestTimestamp_YAML(t *testing.T) {
	task := Task{
		ID:          "1",
		Description: "export",
		Priority:    PriorityNormal,
		EndDateTime: NewTimestamp(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)),
		CreatedAt:   *NewTimestamp(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
	}

	out, err := yaml.Marshal(task)
	require.NoError(t, err)
	assert.Contains(t, string(out), "endDateTime: \"2024-03-01T09:30:00.000Z\"")
	assert.NotContains(t, string(out), "startDateTime")
}

func TestTimestamp_Same(t *testing.T) {
	a := NewTimestamp(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	b := NewTimestamp(time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)))

	assert.True(t, a.Same(b))
	assert.False(t, a.Same(nil))
	assert.True(t, (*Timestamp)(nil).Same(nil))
	assert.Nil(t, NewTimestamp(time.Time{}))
}

func TestTimestamp_YAMLRoundTrip(t *testing.T) {
	in := []Task{{
		ID:          "1",
		Description: "export",
		Priority:    PriorityImportant,
		EndDateTime: NewTimestamp(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)),
		DueDate:     NewTimestamp(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)),
		CreatedAt:   *NewTimestamp(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
	}}

	data, err := yaml.Marshal(in)
	require.NoError(t, err)

	var out []Task
	require.NoError(t, yaml.Unmarshal(data, &out))
	require.Len(t, out, 1)
	assert.True(t, out[0].EndDateTime.Same(in[0].EndDateTime))
	assert.True(t, out[0].CreatedAt.Equal(in[0].CreatedAt.Time))
	assert.Nil(t, out[0].StartDateTime)
}

func TestTimestamp_ZeroNumberIsAbsent(t *testing.T) {
	var task Task
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","description":"legacy","dueDate":0,"startDateTime":-1}`), &task))
	task.Normalize(t0)

	assert.Nil(t, task.DueDate)
	assert.Nil(t, task.EndDateTime)
	assert.Nil(t, task.StartDateTime)
	assert.Nil(t, task.DueAt())
	assert.False(t, task.IsOverdue(t0))
}
