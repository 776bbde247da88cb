package cache

import (
	"testing"
	"time"

	"github.com/goliatone/go-guarded-cache/pkg/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecs_RoundTrip(t *testing.T) {
	original := shop{ID: 7, Name: "Noodle Bar é", Score: 3.25}

	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Marshal(original)
			require.NoError(t, err)
			require.NotEmpty(t, data)
			assert.False(t, isNullSentinel(data))

			var decoded shop
			require.NoError(t, codec.Unmarshal(data, &decoded))
			assert.Equal(t, original, decoded)
		})
	}
}

func TestCodecByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: CodecJSON},
		{name: "json", want: CodecJSON},
		{name: " MsgPack ", want: CodecMsgpack},
		{name: "gob", wantErr: true},
	}

	for _, tt := range tests {
		codec, err := CodecByName(tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, codec.Name())
	}
}

func TestLogicalExpiryRecord_WireFormat(t *testing.T) {
	expireAt := time.Date(2024, 1, 1, 12, 0, 20, 0, time.UTC)
	rec := LogicalExpiryRecord[shop]{Data: shop{ID: 1, Name: "Tea House"}, ExpireAt: expireAt}

	data, err := encodeLogical(JSONCodec{}, rec)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"data":{"id":1,"name":"Tea House","score":0},"expireAt":1704110420000}`,
		string(data))

	decoded, err := decodeLogical[shop](JSONCodec{}, data)
	require.NoError(t, err)
	assert.Equal(t, rec.Data, decoded.Data)
	assert.True(t, decoded.ExpireAt.Equal(expireAt))
}

func TestLogicalExpiryRecord_DecodesStoredFixture(t *testing.T) {
	raw := testsupport.LoadFixture(t, testsupport.FixturePath("logical_record.json"))

	decoded, err := decodeLogical[shop](JSONCodec{}, raw)
	require.NoError(t, err)
	assert.Equal(t, shop{ID: 3, Name: "Dumpling Corner", Score: 4.8}, decoded.Data)
	assert.Equal(t, int64(1704110420000), decoded.ExpireAt.UnixMilli())

	var generic map[string]any
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("logical_record.json"), &generic)
	assert.Contains(t, generic, "expireAt")
}

func TestLogicalExpiryRecord_MsgpackRoundTrip(t *testing.T) {
	expireAt := time.UnixMilli(1704110420123)
	rec := LogicalExpiryRecord[shop]{Data: shop{ID: 2, Score: 1.5}, ExpireAt: expireAt}

	data, err := encodeLogical(MsgpackCodec{}, rec)
	require.NoError(t, err)

	decoded, err := decodeLogical[shop](MsgpackCodec{}, data)
	require.NoError(t, err)
	assert.Equal(t, rec.Data, decoded.Data)
	assert.True(t, decoded.ExpireAt.Equal(expireAt))
}

func TestDecodeLogical_Rejects(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":           "",
		"garbage":         "garbage",
		"plain payload":   `{"id":1,"name":"x"}`,
		"wrong data type": `{"data":"x","expireAt":1}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeLogical[shop](JSONCodec{}, []byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLogicalExpiryRecord_Expired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, LogicalExpiryRecord[int]{ExpireAt: now.Add(time.Millisecond)}.Expired(now))
	assert.True(t, LogicalExpiryRecord[int]{ExpireAt: now}.Expired(now))
	assert.True(t, LogicalExpiryRecord[int]{ExpireAt: now.Add(-time.Second)}.Expired(now))
}
