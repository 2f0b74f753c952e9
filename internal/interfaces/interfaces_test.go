package interfaces_test

import (
	"github.com/themobileprof/ceepilot/internal/db"
	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/internal/fiches"
	"github.com/themobileprof/ceepilot/internal/history"
	"github.com/themobileprof/ceepilot/internal/interfaces"
	"github.com/themobileprof/ceepilot/internal/storage"
)

var (
	_ interfaces.FicheStore         = (*fiches.Loader)(nil)
	_ interfaces.FicheImporter      = (*fiches.Loader)(nil)
	_ interfaces.SourceFetcher      = (*storage.Client)(nil)
	_ interfaces.Calculator         = (*engine.Engine)(nil)
	_ interfaces.SimulationStore    = (*history.Store)(nil)
	_ interfaces.CalculationLogger  = (*db.DB)(nil)
	_ interfaces.SettingsManager    = (*db.DB)(nil)
	_ interfaces.DatabaseConnection = (*db.DB)(nil)
)
