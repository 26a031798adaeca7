package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/partvault/partvault/internal/client/workspace"
	"github.com/partvault/partvault/internal/utils"
	"github.com/partvault/partvault/internal/vaultsdk"
)

// Manager owns every sync component of one vault: the scanner, journal,
// staging queue, checkout manager, reconciler, watcher and the engine loop
// that ties them together.
type Manager struct {
	ws       *workspace.Workspace
	sdk      *vaultsdk.VaultSDK
	settings *VaultSettings

	ignore     *IgnoreList
	scanner    *LocalScanner
	journal    *Journal
	staging    *StagingQueue
	tracker    *StatusTracker
	classifier *Classifier
	checkout   *CheckoutManager
	reconciler *Reconciler
	watcher    *FileWatcher
	engine     *Engine
}

// NewManager wires the sync stack for one vault. The transfer backend is
// presigned HTTP unless an S3 storage config selects the direct backend.
func NewManager(ws *workspace.Workspace, sdk *vaultsdk.VaultSDK, s3 *vaultsdk.S3Config) (*Manager, error) {
	settings, err := LoadVaultSettings(ws.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("load vault settings: %w", err)
	}

	ignore := NewIgnoreList(ws.Root)
	scanner, err := NewLocalScanner(ws, ignore)
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	journal := NewJournal(ws.JournalPath)
	staging := NewStagingQueue(ws.StagingPath, ws.StagingDir)
	tracker := NewStatusTracker()
	watcher := NewFileWatcher(ws.Root)

	var transfer vaultsdk.Transfer
	if s3 != nil {
		transfer, err = vaultsdk.NewS3Transfer(s3)
		if err != nil {
			return nil, fmt.Errorf("create s3 transfer: %w", err)
		}
		slog.Info("transfer backend", "type", "s3", "endpoint", s3.Endpoint)
	} else {
		transfer = vaultsdk.NewHTTPTransfer(sdk.Blob)
	}

	classifier := NewClassifier(ws.Owner, utils.HWID)
	checkout := NewCheckoutManager(ws, sdk.Records, sdk.Machines, transfer, journal, staging, tracker, scanner, ws.Owner)
	reconciler := NewReconciler(scanner, sdk.Records, journal, classifier, checkout, staging, tracker, settings)
	engine := NewEngine(ws, sdk.Records, sdk.Events, transfer, scanner, journal, staging, classifier, checkout, tracker, watcher, ws.Owner)

	return &Manager{
		ws:         ws,
		sdk:        sdk,
		settings:   settings,
		ignore:     ignore,
		scanner:    scanner,
		journal:    journal,
		staging:    staging,
		tracker:    tracker,
		classifier: classifier,
		checkout:   checkout,
		reconciler: reconciler,
		watcher:    watcher,
		engine:     engine,
	}, nil
}

func (m *Manager) Start(ctx context.Context) error {
	slog.Info("sync manager start")

	if err := m.journal.Open(); err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if err := m.staging.Open(); err != nil {
		return fmt.Errorf("open staging queue: %w", err)
	}
	if err := m.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	if err := m.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	return nil
}

func (m *Manager) Stop() {
	slog.Info("sync manager stop")
	m.watcher.Stop()
	m.engine.Stop()
	m.tracker.Close()
	if err := m.staging.Close(); err != nil {
		slog.Error("close staging queue", "error", err)
	}
	if err := m.journal.Close(); err != nil {
		slog.Error("close journal", "error", err)
	}
}

// TriggerSync requests an immediate full pass.
func (m *Manager) TriggerSync(ctx context.Context) error {
	return m.engine.RunFullSync(ctx)
}

func (m *Manager) Checkout() *CheckoutManager { return m.checkout }
func (m *Manager) Reconciler() *Reconciler    { return m.reconciler }
func (m *Manager) Tracker() *StatusTracker    { return m.tracker }
func (m *Manager) Staging() *StagingQueue     { return m.staging }
func (m *Manager) Journal() *Journal          { return m.journal }
func (m *Manager) Settings() *VaultSettings   { return m.settings }
