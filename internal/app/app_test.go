package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Brownie44l1/imgclass-api/internal/config"
	"github.com/Brownie44l1/imgclass-api/internal/handlers"
	"github.com/Brownie44l1/imgclass-api/internal/inference"
	"github.com/Brownie44l1/imgclass-api/internal/model"
	"github.com/Brownie44l1/imgclass-api/internal/predict"
	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticNetwork []float32

func (n staticNetwork) Forward(*preprocess.Tensor) ([]float32, error) {
	return append([]float32(nil), n...), nil
}

func fakeArtifacts() fx.Option {
	return fx.Provide(
		func() inference.Network { return staticNetwork{0.2, 0.1, 0.7} },
		func() *model.Labels { return model.NewLabels([]string{"cat", "dog", "bird"}) },
		func() handlers.Info { return handlers.Info{Device: "cpu", Backbone: "resnet50"} },
	)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	return cfg
}

func TestCoreModuleServes(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = true

	var (
		router *gin.Engine
		svc    *predict.Service
	)
	app := fxtest.New(t,
		fx.Supply(cfg, zap.NewNop()),
		fx.NopLogger,
		fakeArtifacts(),
		CoreModule,
		fx.Populate(&router, &svc),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, 3, svc.NumClasses())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"classes":3`)
	assert.Contains(t, rec.Body.String(), `"filter":"bilinear"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBadFilterFailsStartup(t *testing.T) {
	cfg := testConfig()
	cfg.Preprocess.Filter = "nearest"

	app := fx.New(
		fx.Supply(cfg, zap.NewNop()),
		fx.NopLogger,
		fakeArtifacts(),
		CoreModule,
	)
	require.Error(t, app.Err())
}

func TestMissingArtifactsFailStartup(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	cfg.Model.Path = filepath.Join(dir, "missing.onnx")
	cfg.Model.Labels = filepath.Join(dir, "missing.json")

	app := fx.New(Options(cfg, zap.NewNop()), fx.NopLogger)
	err := app.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrArtifactMissing)
}
