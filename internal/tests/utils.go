package tests

import (
	"testing"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/logger"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"go.uber.org/zap"
)

// Reference tags and the roots they produce for DemoRecords
const (
	ReserveLeafTag   = "ProofOfReserve_Leaf"
	ReserveBranchTag = "ProofOfReserve_Branch"

	DemoRootEightUsers = "b1231de33da17c23cebd80c104b88198e0914b0463d0e14db163605b904a7ba3"
	DemoRootThreeUsers = "dc428ac27bdbf4da805ba64656dd4a1293f142fef742127e6991207e9f0e31b3"
)

// DemoRecords returns users 1..n with balance id*1111
func DemoRecords(n int) []*types.UserRecord {
	records := make([]*types.UserRecord, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, &types.UserRecord{UserID: int64(i), Balance: int64(i) * 1111})
	}
	return records
}

func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return l
}
