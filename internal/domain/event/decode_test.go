package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_LoanCreated(t *testing.T) {
	raw := RawLog{
		EventName:   "LoanCreated",
		TxHash:      "0xabc",
		BlockNumber: 120,
		LogIndex:    3,
		BlockTime:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Payload: json.RawMessage(`{
			"loanId": "loan-1",
			"borrower": "0xborrower",
			"domainTokenId": "101",
			"principalAmount": "300",
			"interestRate": 500,
			"duration": 2592000,
			"totalOwed": "315",
			"dueDate": 1756684800,
			"poolId": "pool-1",
			"aiScore": 80
		}`),
	}

	ev, err := Decode(raw)
	require.NoError(t, err)

	created, ok := ev.(*LoanCreated)
	require.True(t, ok, "decoded %T", ev)
	assert.Equal(t, "loan-1", created.LoanID)
	assert.Equal(t, "0xborrower", created.BorrowerAddress)
	assert.Equal(t, "300", created.PrincipalAmount)
	assert.Equal(t, "pool-1", created.PoolID)
	assert.Equal(t, time.Unix(1756684800, 0).UTC(), created.DueDate)
	assert.Equal(t, LogKey{TxHash: "0xabc", BlockNumber: 120, LogIndex: 3}, ev.Key())
}

func TestDecode_BatchScoringRequested(t *testing.T) {
	ev, err := Decode(RawLog{
		EventName: "BatchScoringRequested",
		TxHash:    "0xdef",
		Payload:   json.RawMessage(`{"domainTokenIds": ["101", "102"], "requester": "0xreq"}`),
	})
	require.NoError(t, err)

	batch, ok := ev.(*BatchScoringRequested)
	require.True(t, ok, "decoded %T", ev)
	assert.Equal(t, []string{"101", "102"}, batch.DomainTokenIDs)
	assert.Equal(t, "0xreq", batch.RequesterAddress)
}

func TestDecode_BatchScoresSubmitted_ShapeMismatch(t *testing.T) {
	_, err := Decode(RawLog{
		EventName: "BatchScoresSubmitted",
		Payload:   json.RawMessage(`{"domainTokenIds": ["101", "102"], "scores": [70]}`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestDecode_UnknownEventName(t *testing.T) {
	_, err := Decode(RawLog{
		EventName: "SomethingNew",
		Payload:   json.RawMessage(`{}`),
	})

	var unknown *ErrUnknownEvent
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "SomethingNew", unknown.EventName)
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode(RawLog{
		EventName: "LoanRepaid",
		TxHash:    "0xabc",
		LogIndex:  2,
		Payload:   json.RawMessage(`"not-an-object"`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0xabc#2")

	_, err = Decode(RawLog{EventName: "LoanRepaid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty payload")
}

func TestLogKey_Less(t *testing.T) {
	a := LogKey{BlockNumber: 100, LogIndex: 5}
	b := LogKey{BlockNumber: 101, LogIndex: 0}
	c := LogKey{BlockNumber: 100, LogIndex: 6}

	assert.True(t, a.Less(b))
	assert.True(t, a.Less(c))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}
