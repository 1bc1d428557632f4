package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
)

func TestRegister_DeterministicTrackingNo(t *testing.T) {
	g := New()
	ctx := context.Background()

	req := epost.RegisterRequest{CustomerNo: "CUST001", OrderNo: "ORD-1", Weight: 2}
	a, err := g.Register(ctx, req)
	require.NoError(t, err)
	b, err := g.Register(ctx, req)
	require.NoError(t, err)
	require.Equal(t, a.RegiNo, b.RegiNo)

	// Carrier format: 13 digits with the 69 prefix.
	require.Len(t, a.RegiNo, 13)
	require.Equal(t, "69", a.RegiNo[:2])
	require.NotEmpty(t, a.ReqNo)
	require.NotEmpty(t, a.ResNo)
	require.NotEmpty(t, a.ResDate)

	other, err := g.Register(ctx, epost.RegisterRequest{CustomerNo: "CUST001", OrderNo: "ORD-2", Weight: 2})
	require.NoError(t, err)
	require.NotEqual(t, a.RegiNo, other.RegiNo)
}

func TestRegister_PriceScalesWithWeight(t *testing.T) {
	g := New()
	ctx := context.Background()

	light, err := g.Register(ctx, epost.RegisterRequest{OrderNo: "ORD-1", Weight: 2})
	require.NoError(t, err)
	require.Equal(t, 4000, light.Price)

	heavy, err := g.Register(ctx, epost.RegisterRequest{OrderNo: "ORD-1", Weight: 5})
	require.NoError(t, err)
	require.Equal(t, 7000, heavy.Price)
}

func TestCancelRegistration_AlwaysSucceeds(t *testing.T) {
	g := New()
	require.NoError(t, g.CancelRegistration(context.Background(), epost.CancelRequest{RegiNo: "691"}))
}

func TestTreatStatus_StableAndValid(t *testing.T) {
	g := New()
	ctx := context.Background()

	valid := map[string]bool{
		epost.StageCollected:     true,
		epost.StageInTransit:     true,
		epost.StageOutForDeliver: true,
		epost.StageDelivered:     true,
	}

	for _, orderNo := range []string{"ORD-1", "ORD-2", "ORD-3", "ORD-4", "ORD-5"} {
		req := epost.StatusRequest{CustomerNo: "CUST001", OrderNo: orderNo}
		s1, err := g.TreatStatus(ctx, req)
		require.NoError(t, err)
		require.True(t, valid[s1], "stage %q", s1)

		s2, err := g.TreatStatus(ctx, req)
		require.NoError(t, err)
		require.Equal(t, s1, s2)
	}
}
