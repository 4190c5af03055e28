package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sale-signature-flow/internal/domain"
)

func TestArchiveObjectKeyUsesLatestSignature(t *testing.T) {
	doc, err := domain.BuildSalesOrderDocument("s-1", "p-1")
	require.NoError(t, err)
	doc, err = domain.MarkSigned(doc, 2, "p-1", time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	doc, err = domain.MarkSigned(doc, 1, "s-1", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, "o-1/sales_order/20260302T093000Z.json", ArchiveObjectKey("o-1", doc))
	require.Equal(t, ArchiveObjectKey("o-1", doc), ArchiveObjectKey("o-1", doc.Clone()))
}

func TestAuditPayload(t *testing.T) {
	b, err := auditPayload(nil)
	require.NoError(t, err)
	require.Equal(t, "{}", string(b))

	b, err = auditPayload([]byte(`{"raw":true}`))
	require.NoError(t, err)
	require.Equal(t, `{"raw":true}`, string(b))

	b, err = auditPayload(map[string]string{"reason": "state"})
	require.NoError(t, err)
	require.JSONEq(t, `{"reason":"state"}`, string(b))
}
