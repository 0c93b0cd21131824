package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/norun9/shopstate/identity"
	"github.com/norun9/shopstate/kvstore"
)

// staticResolver always resolves to "{domain}-{owner}".
type staticResolver struct{ owner string }

func (s staticResolver) ResolvePartitionKey(ctx context.Context, d identity.Domain) string {
	return identity.UserKey(d, s.owner)
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func product(id string, price int64) Product {
	return Product{ID: id, Title: "Product " + id, Price: decimal.NewFromInt(price), Images: []string{id + ".png"}}
}

func newLocal() *kvstore.LocalKVStore { return kvstore.NewLocalKVStore(quietLogger()) }

func mustEqualDecimal(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

var bg = context.Background()
