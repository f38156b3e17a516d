package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

func TestJSONLAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "analytics.jsonl")
	sink := NewJSONL[model.Analytics](path)

	require.NoError(t, sink.Append(model.Analytics{TokenAddress: "0xabc", PercentChange: 20}))
	require.NoError(t, sink.Append(model.Analytics{TokenAddress: "0xabc", PercentChange: 25}, model.Analytics{TokenAddress: "0xdef"}))
	require.NoError(t, sink.Append())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []model.Analytics
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var a model.Analytics
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &a))
		got = append(got, a)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 3)
	assert.Equal(t, 25.0, got[1].PercentChange)
	assert.Equal(t, "0xdef", got[2].TokenAddress)
}

func TestValidate(t *testing.T) {
	valid := model.TradeRecord{ID: "id", TxHash: "0x01", TokenAddress: "0xabc", TradeType: model.TradeTypeDeploy}
	assert.NoError(t, Validate(valid))

	missing := valid
	missing.TxHash = ""
	assert.ErrorIs(t, Validate(missing), ErrInvalidInput)

	unknown := valid
	unknown.TradeType = "swap"
	assert.ErrorIs(t, Validate(unknown), ErrInvalidInput)
}
