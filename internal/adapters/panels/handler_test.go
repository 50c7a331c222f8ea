package panels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelflow/internal/blob"
	"panelflow/internal/core"
	"panelflow/internal/reconcile"
	"panelflow/internal/tabular"
	"panelflow/pkg/domain"
)

type fixture struct {
	handler *Handler
	service *core.Service
	project core.Project
	worker  *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	project, _, err := svc.CreateProject(ctx, core.Project{Code: "TWR", Name: "Tower"})
	require.NoError(t, err)
	_, _, err = svc.CreateBuilding(ctx, core.Building{ProjectID: project.ID, Name: "Block A"})
	require.NoError(t, err)

	archive := blob.NewUploadArchive(blob.NewMockS3(), nil)
	worker := NewWorker(svc, blob.NewMemory(), nil)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	h := NewHandler(svc, reconcile.New(svc.Store(), reconcile.Options{Archive: archive, Workers: 2}))
	h.Archives = archive
	h.Exports = worker
	return &fixture{handler: h, service: svc, project: project, worker: worker}
}

func (f *fixture) do(t *testing.T, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type importResponse struct {
	Report reconcile.Report `json:"report"`
	Error  string           `json:"error"`
}

const panelCSV = "Serial Number,Status,Weight,Building\nPNL-001,delivered,500,Block A\nPNL-002,,,\n"

func (f *fixture) importPanels(t *testing.T) map[string]core.Panel {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/panels/imports?project=TWR&filename=drop.csv", []byte(panelCSV), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	require.Equal(t, 2, resp.Report.Added, resp.Report.Errors)
	require.True(t, resp.Report.Persisted)

	bySerial := make(map[string]core.Panel)
	for _, p := range f.service.ListPanels(context.Background(), core.PanelFilter{}) {
		bySerial[p.SerialNumber] = p
	}
	return bySerial
}

func TestImportThenTransition(t *testing.T) {
	f := newFixture(t)
	panels := f.importPanels(t)
	delivered := panels["PNL-001"]
	assert.Equal(t, domain.StatusDelivered, delivered.Status)
	assert.Equal(t, f.project.ID, delivered.ProjectID)
	require.NotNil(t, delivered.BuildingID)

	admin := http.Header{RoleHeader: {"admin"}, UserHeader: {"dana"}}
	rec := f.do(t, http.MethodGet, "/api/v1/panels/"+delivered.ID+"/next-states", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[struct {
		NextStates []domain.Status `json:"next_states"`
	}](t, rec)
	assert.Equal(t, []domain.Status{domain.StatusApprovedMaterial, domain.StatusRejectedMaterial}, next.NextStates)

	rec = f.do(t, http.MethodPost, "/api/v1/panels/"+delivered.ID+"/transitions", []byte(`{"status":"installed"}`), admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/panels/"+delivered.ID+"/transitions", []byte(`{"status":"approved_material","notes":"ok"}`), admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[struct {
		Panel domain.Panel `json:"panel"`
	}](t, rec).Panel
	assert.Equal(t, domain.StatusApprovedMaterial, moved.Status)
	last, ok := moved.History.Last()
	require.True(t, ok)
	assert.Equal(t, "dana", last.UpdatedBy)
	assert.Equal(t, delivered.History.Len()+1, moved.History.Len())
	assert.True(t, moved.InstalledDate.IsZero())

	rec = f.do(t, http.MethodGet, "/api/v1/panels/"+delivered.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"approved_material"`)
}

func TestTransitionRequestValidation(t *testing.T) {
	f := newFixture(t)
	panels := f.importPanels(t)
	id := panels["PNL-002"].ID

	rec := f.do(t, http.MethodPost, "/api/v1/panels/"+id+"/transitions", []byte(`{"status":"issued"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	role := http.Header{RoleHeader: {"data_entry"}}
	rec = f.do(t, http.MethodPost, "/api/v1/panels/"+id+"/transitions", []byte(`{"status":"flying"}`), role)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/panels/"+id+"/transitions", []byte(`{`), role)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/panels/missing/transitions", []byte(`{"status":"issued"}`), role)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/panels/"+id+"/transitions", nil, role)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/panels/"+id+"/next-states", nil, http.Header{RoleHeader: {"visitor"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"next_states":[]`)
}

func TestListAndCatalog(t *testing.T) {
	f := newFixture(t)
	f.importPanels(t)

	rec := f.do(t, http.MethodGet, "/api/v1/panels?status=delivered", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Panels []domain.Panel `json:"panels"`
	}](t, rec)
	require.Len(t, list.Panels, 1)
	assert.Equal(t, "PNL-001", list.Panels[0].SerialNumber)

	rec = f.do(t, http.MethodGet, "/api/v1/panels?status=melted", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/statuses", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	catalog := decode[struct {
		Statuses []domain.StatusInfo `json:"statuses"`
		Roles    []domain.Role       `json:"roles"`
	}](t, rec)
	assert.Len(t, catalog.Statuses, 15)
	assert.Len(t, catalog.Roles, 9)

	rec = f.do(t, http.MethodGet, "/api/v1/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestItemImportFromMultipart(t *testing.T) {
	f := newFixture(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "items.json")
	require.NoError(t, err)
	_, err = part.Write([]byte(`[{"Name":"Transmittal 7","Status":"Completed","Qty":"3"}]`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := f.do(t, http.MethodPost, "/api/v1/items/imports?project=TWR", body.Bytes(), http.Header{"Content-Type": {mw.FormDataContentType()}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	assert.Equal(t, 1, resp.Report.Added)
	assert.Contains(t, resp.Report.ArchiveKey, "uploads/items/")

	items := f.service.ListItems(context.Background(), f.project.ID)
	require.Len(t, items, 1)
	assert.Equal(t, domain.ItemStatusCompleted, items[0].Status)
	assert.Equal(t, 3.0, items[0].Quantity)
}

func TestImportErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/panels/imports?filename=x.csv", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/panels/imports?filename=x.json", []byte(`{not json`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[importResponse](t, rec)
	assert.Equal(t, reconcile.StateFailed, resp.Report.State)
	assert.Contains(t, resp.Error, "parse payload")

	f.handler.MaxUploadBytes = 4
	rec = f.do(t, http.MethodPost, "/api/v1/panels/imports?filename=x.csv", []byte(panelCSV), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/panels/imports", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type failingImporter struct{}

func (failingImporter) ImportPanels(context.Context, reconcile.Request) (reconcile.Report, error) {
	report := reconcile.Report{BatchID: "b-1", Added: 2, Total: 2, State: reconcile.StateFailed, Errors: []string{}}
	return report, reconcile.PersistenceError{BatchID: "b-1", Err: errors.New("disk full")}
}

func (failingImporter) ImportItems(context.Context, reconcile.Request) (reconcile.Report, error) {
	return reconcile.Report{}, errors.New("boom")
}

func TestImportStoreFailures(t *testing.T) {
	f := newFixture(t)
	f.handler.Imports = failingImporter{}

	rec := f.do(t, http.MethodPost, "/api/v1/panels/imports?filename=x.csv", []byte(panelCSV), nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[importResponse](t, rec)
	assert.Equal(t, 2, resp.Report.Added)
	assert.False(t, resp.Report.Persisted)
	assert.Contains(t, resp.Error, "disk full")

	rec = f.do(t, http.MethodPost, "/api/v1/items/imports?filename=x.csv", []byte("name\nA\n"), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExportWorkbookRoundTrips(t *testing.T) {
	f := newFixture(t)
	f.importPanels(t)

	rec := f.do(t, http.MethodGet, "/api/v1/panels/export", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	rows, err := tabular.Parse(tabular.FormatXLSX, rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "PNL-001", rows[0]["Serial Number"])
	assert.Equal(t, "TWR", rows[0]["Project"])
	assert.Equal(t, "Block A", rows[0]["Building"])
	assert.Equal(t, "Delivered", rows[0]["Status"])

	rec = f.do(t, http.MethodPost, "/api/v1/panels/imports?filename=again.xlsx", rec.Body.Bytes(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	assert.Equal(t, 0, resp.Report.Added)
	assert.Equal(t, 2, resp.Report.Updated)
}

func TestArchivesListAndLink(t *testing.T) {
	f := newFixture(t)
	f.importPanels(t)

	rec := f.do(t, http.MethodGet, "/api/v1/archives?kind=panels", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Archives []blob.Info `json:"archives"`
	}](t, rec)
	require.Len(t, list.Archives, 1)

	rec = f.do(t, http.MethodGet, "/api/v1/archives/link?key="+list.Archives[0].Key, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-Amz-Signature")

	rec = f.do(t, http.MethodGet, "/api/v1/archives/link?key=exports/x.xlsx", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/archives/link", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.handler.Archives = blob.NewUploadArchive(blob.NewMemory(), nil)
	rec = f.do(t, http.MethodGet, "/api/v1/archives/link?key=uploads/panels/a.csv", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	f.handler.Archives = nil
	rec = f.do(t, http.MethodGet, "/api/v1/archives", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAsyncExport(t *testing.T) {
	f := newFixture(t)
	f.importPanels(t)

	rec := f.do(t, http.MethodPost, "/api/v1/exports", []byte(`{"status":"delivered"}`), http.Header{UserHeader: {"dana"}})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	queued := decode[struct {
		Export ExportRecord `json:"export"`
	}](t, rec).Export
	assert.Equal(t, "dana", queued.RequestedBy)

	require.Eventually(t, func() bool {
		record, ok := f.worker.GetExport(queued.ID)
		return ok && record.Status == ExportStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	rec = f.do(t, http.MethodGet, "/api/v1/exports/"+queued.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[struct {
		Export ExportRecord `json:"export"`
	}](t, rec).Export
	require.NotNil(t, done.Artifact)
	assert.Equal(t, 1, done.Artifact.Rows)
	assert.Equal(t, "exports/"+queued.ID+".xlsx", done.Artifact.Key)
	assert.NotNil(t, done.CompletedAt)

	rec = f.do(t, http.MethodPost, "/api/v1/exports", []byte(`{"status":"melted"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/exports/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
