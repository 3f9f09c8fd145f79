package records

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/workbook"
	"github.com/remitlab/sheetrelay/internal/workbook/csvbook"
	"github.com/remitlab/sheetrelay/internal/workbook/sqlbook"
)

func newCSVService(t *testing.T) (*Service, workbook.Book) {
	t.Helper()
	b, err := csvbook.Open(t.TempDir())
	require.NoError(t, err)
	return NewService(b), b
}

func payload(t *testing.T, body string) model.Payload {
	t.Helper()
	req, err := model.DecodeRequest([]byte(body))
	require.NoError(t, err)
	return req.Payload
}

func save(t *testing.T, svc *Service, body string) {
	t.Helper()
	rec, ok := payload(t, body).(model.Record)
	require.True(t, ok, "%s is not a save", body)
	_, err := svc.Append(context.Background(), rec)
	require.NoError(t, err)
}

func del(t *testing.T, svc *Service, body string) error {
	t.Helper()
	req, ok := payload(t, body).(*model.DeleteRequest)
	require.True(t, ok, "%s is not a delete", body)
	_, err := svc.Delete(context.Background(), req)
	return err
}

func ids(t *testing.T, svc *Service) []string {
	t.Helper()
	recs, err := svc.Collect(context.Background())
	require.NoError(t, err)
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.RecordID().Text()
	}
	return out
}

func TestAppend_ColumnOrderAndDefaults(t *testing.T) {
	ctx := context.Background()
	svc, book := newCSVService(t)

	schema, err := svc.Append(ctx, payload(t, `{"id":"f1","signups":100,"savedAt":"2024-01-01"}`).(model.Record))
	require.NoError(t, err)
	assert.Equal(t, "Funnel", schema.Name)

	sh, ok, err := book.Sheet(ctx, "Funnel")
	require.NoError(t, err)
	require.True(t, ok)
	values, err := sh.Values(ctx)
	require.NoError(t, err)
	require.Len(t, values, 2)

	row := values[1]
	require.Len(t, row, len(model.FunnelColumns))
	assert.Equal(t, `"f1"`, row[0].Raw())
	assert.Equal(t, `"funnel"`, row[1].Raw(), "missing type defaults to funnel")
	assert.Equal(t, `100`, row[4].Raw())
	for _, i := range []int{2, 3, 5, 6, 7, 8, 9, 10, 11, 12} {
		assert.True(t, row[i].IsEmpty(), "column %s should be empty", model.FunnelColumns[i])
	}
	assert.Equal(t, `"2024-01-01"`, row[13].Raw())
}

func TestAppend_CurrencyTypeKept(t *testing.T) {
	ctx := context.Background()
	svc, book := newCSVService(t)
	save(t, svc, `{"id":"c1","type":"currency","gbpRate":1.5}`)

	_, ok, err := book.Sheet(ctx, "Funnel")
	require.NoError(t, err)
	assert.False(t, ok, "currency save must not create Funnel")

	sh, ok, err := book.Sheet(ctx, "Currency")
	require.NoError(t, err)
	require.True(t, ok)
	values, err := sh.Values(ctx)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, `"currency"`, values[1][1].Raw())
	assert.Equal(t, `1.5`, values[1][16].Raw())
}

func TestAppend_DuplicateIDs(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"dup","signups":1}`)
	save(t, svc, `{"id":"dup","signups":2}`)
	assert.Equal(t, []string{"dup", "dup"}, ids(t, svc))
}

func TestDelete_Single(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"a"}`)
	save(t, svc, `{"id":"b"}`)
	save(t, svc, `{"id":"c"}`)

	require.NoError(t, del(t, svc, `{"action":"delete","id":"b"}`))
	assert.Equal(t, []string{"a", "c"}, ids(t, svc))
}

func TestDelete_NotFound(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"a"}`)

	err := del(t, svc, `{"action":"delete","id":"zzz"}`)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "no record found with id: zzz", err.Error())
	assert.Equal(t, []string{"a"}, ids(t, svc))
}

func TestDelete_StrictEquality(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":1}`)

	err := del(t, svc, `{"action":"delete","id":"1"}`)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf, "string id must not match numeric id")

	require.NoError(t, del(t, svc, `{"action":"delete","id":1}`))
	assert.Empty(t, ids(t, svc))
}

func TestDelete_RepeatedDuplicates(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"x","label":"first"}`)
	save(t, svc, `{"id":"y"}`)
	save(t, svc, `{"id":"x","label":"second"}`)

	require.NoError(t, del(t, svc, `{"action":"delete","id":"x"}`))
	recs, err := svc.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "second", recs[1].(*model.FunnelRecord).Label.Text(), "lowest index goes first")

	require.NoError(t, del(t, svc, `{"action":"delete","id":"x"}`))
	assert.Equal(t, []string{"y"}, ids(t, svc))

	var nf *NotFoundError
	assert.ErrorAs(t, del(t, svc, `{"action":"delete","id":"x"}`), &nf)
}

func TestDelete_MissingTable(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"f1"}`)

	err := del(t, svc, `{"action":"delete","id":"f1","type":"currency"}`)
	var tnf *TableNotFoundError
	require.ErrorAs(t, err, &tnf)
	assert.Equal(t, "table not found: Currency", err.Error())
	assert.Equal(t, []string{"f1"}, ids(t, svc))
}

func TestDelete_RoutesByType(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"same"}`)
	save(t, svc, `{"id":"same","type":"currency"}`)

	require.NoError(t, del(t, svc, `{"action":"delete","id":"same","type":"currency"}`))
	recs, err := svc.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.KindFunnel, recs[0].Kind())
}

func TestDelete_NonExactTypeRoutesToFunnel(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"same"}`)
	save(t, svc, `{"id":"same","type":"currency"}`)

	for _, typ := range []string{`"Currency"`, `"funnel"`, `1`} {
		schema, err := svc.Delete(context.Background(), &model.DeleteRequest{
			ID:   model.StringCell("same"),
			Type: mustCell(t, typ),
		})
		if typ == `"Currency"` {
			require.NoError(t, err)
		} else {
			var nf *NotFoundError
			require.ErrorAs(t, err, &nf, typ)
		}
		assert.Equal(t, "Funnel", schema.Name, typ)
	}
	recs, err := svc.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.KindCurrency, recs[0].Kind())
}

func mustCell(t *testing.T, js string) model.Cell {
	t.Helper()
	c, err := model.ParseCell([]byte(js))
	require.NoError(t, err)
	return c
}

func TestReadAll_Empty(t *testing.T) {
	svc, _ := newCSVService(t)
	recs, err := svc.Collect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestReadAll_FunnelThenCurrency(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"c1","type":"currency"}`)
	save(t, svc, `{"id":"f1"}`)
	save(t, svc, `{"id":"c2","type":"currency"}`)
	save(t, svc, `{"id":"f2"}`)

	assert.Equal(t, []string{"f1", "f2", "c1", "c2"}, ids(t, svc))
}

func TestReadAll_DefaultsFunnelTypeAndPadsShortRows(t *testing.T) {
	ctx := context.Background()
	svc, book := newCSVService(t)
	save(t, svc, `{"id":"f1"}`)

	sh, ok, err := book.Sheet(ctx, "Funnel")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, sh.AppendRow(ctx, []model.Cell{model.StringCell("legacy")}))

	recs, err := svc.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	legacy := recs[1].(*model.FunnelRecord)
	assert.Equal(t, "funnel", legacy.Type.Text())
	assert.Len(t, legacy.Row(), len(model.FunnelColumns))
}

func TestReadAll_StopsEarly(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"a"}`)
	save(t, svc, `{"id":"b"}`)

	n := 0
	for rec, err := range svc.ReadAll(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, "a", rec.RecordID().Text())
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestReadAll_Golden(t *testing.T) {
	svc, _ := newCSVService(t)
	save(t, svc, `{"id":"f1","type":"funnel","date":"2024-01-01","label":"Week 1","signups":100,"kycRate":0.80,"savedAt":"2024-01-08T00:00:00Z","auth_token":"T"}`)
	save(t, svc, `{"id":"f2","signups":40}`)
	save(t, svc, `{"id":"c1","type":"currency","date":"2024-01-01","jpyRatio":0.4,"gbpRate":1.5,"completedUsers":12}`)

	recs, err := svc.Collect(context.Background())
	require.NoError(t, err)
	data, err := json.MarshalIndent(recs, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "read_all", append(data, '\n'))
}

func TestSQLBackend(t *testing.T) {
	b, err := sqlbook.Open(sqlbook.DriverSQLite, filepath.Join(t.TempDir(), "book.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	svc := NewService(b)

	save(t, svc, `{"id":"x"}`)
	save(t, svc, `{"id":"y"}`)
	save(t, svc, `{"id":"x"}`)
	save(t, svc, `{"id":"c","type":"currency"}`)

	require.NoError(t, del(t, svc, `{"action":"delete","id":"x"}`))
	assert.Equal(t, []string{"y", "x", "c"}, ids(t, svc))
}
