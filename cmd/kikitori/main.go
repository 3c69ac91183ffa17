package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/yomogy/kikitori/internal/api"
	"github.com/yomogy/kikitori/internal/audio"
	"github.com/yomogy/kikitori/internal/clipboard"
	"github.com/yomogy/kikitori/internal/config"
	"github.com/yomogy/kikitori/internal/dictionary"
	"github.com/yomogy/kikitori/internal/hotkey"
	"github.com/yomogy/kikitori/internal/i18n"
	"github.com/yomogy/kikitori/internal/logger"
	"github.com/yomogy/kikitori/internal/notification"
	"github.com/yomogy/kikitori/internal/recording"
	"github.com/yomogy/kikitori/internal/server"
	"github.com/yomogy/kikitori/internal/syscheck"
	"github.com/yomogy/kikitori/internal/transcribe"
	"github.com/yomogy/kikitori/internal/tray"
	"github.com/yomogy/kikitori/internal/wizard"
)

const (
	version = "0.1.0"
	appName = "Kikitori"
)

// App ties the long-lived components together
type App struct {
	logger     *logger.Logger
	config     *config.Config
	configPath string

	wizard      *wizard.SetupWizard
	backend     *audio.PortAudioBackend
	recorder    *audio.Recorder
	monitor     *audio.LevelMonitor
	dict        *dictionary.Dictionary
	transcriber *transcribe.Client
	clipboard   *clipboard.Manager
	notifier    *notification.NotificationManager
	recMgr      *recording.Manager
	hotkeyMgr   *hotkey.Manager
	httpServer  *server.Server
	apiHandler  *api.Handler
	trayMgr     *tray.Manager

	activeBindings []hotkey.Binding
	isFirstRun     bool
}

func init() {
	// トレイとホットキーはメインスレッドで動かす必要がある
	runtime.LockOSThread()
}

func main() {
	configFlag := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	app := &App{}

	appLogger, err := logger.New(logger.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	app.logger = appLogger
	defer app.logger.Close()

	app.logger.Info("%s v%s starting", appName, version)

	app.configPath = *configFlag
	if app.configPath == "" {
		app.configPath = config.GetConfigPath()
	}
	app.config, err = config.Load(app.configPath)
	if err != nil {
		app.logger.Error("Failed to load configuration: %v", err)
		log.Fatalf("Failed to load configuration: %v", err)
	}
	app.logger.Info("Configuration loaded: %s", app.configPath)

	app.wizard, err = wizard.NewSetupWizardAt(app.configPath)
	if err != nil {
		app.logger.Error("Failed to initialize setup state: %v", err)
	} else {
		created, err := app.wizard.EnsureDefaults()
		if err != nil {
			app.logger.Warn("Failed to write default configuration: %v", err)
		} else if created {
			app.logger.Info("Default configuration created: %s", app.configPath)
			app.detectLanguage()
		}
		app.isFirstRun = app.wizard.ShouldShowWizard()
	}

	i18n.GlobalTranslator = i18n.NewTranslator(i18n.Language(app.config.Clone().UI.Language))

	app.backend, err = audio.NewPortAudioBackend()
	if err != nil {
		app.logger.Error("Failed to initialize audio backend: %v", err)
		log.Fatalf("Failed to initialize audio backend: %v", err)
	}

	audioCfg, err := audioConfigFrom(app.config)
	if err != nil {
		app.logger.Warn("Invalid audio settings, using defaults: %v", err)
		audioCfg = audio.DefaultConfig()
	}
	app.recorder = audio.NewRecorder(app.backend, audioCfg, app.logger)

	// The level meter on the settings page reads from this monitor
	app.monitor = audio.NewLevelMonitor(app.backend, app.logger)
	if err := app.monitor.Start(); err != nil {
		app.logger.Warn("Level monitor unavailable: %v", err)
	}

	dictDir, err := app.config.GetTempDir()
	if err != nil {
		app.logger.Warn("Failed to expand temp dir: %v", err)
		dictDir = filepath.Join(os.TempDir(), "kikitori")
	}
	app.dict, err = dictionary.Load(filepath.Join(dictDir, "user_dictionary.json"))
	if err != nil {
		app.logger.Warn("Failed to load dictionary, starting empty: %v", err)
	}
	app.logger.Info("Dictionary loaded: %d entries", app.dict.Len())

	tcfg := transcribe.DefaultConfig()
	tcfg.APIKey = app.config.Clone().APIKey
	app.transcriber = transcribe.NewClient(tcfg, app.logger)

	app.clipboard = clipboard.NewManager(clipboard.DefaultConfig())

	snapshot := app.config.Clone()
	app.notifier = notification.NewNotificationManager(appName,
		snapshot.UI.NotificationsEnabled, snapshot.Recording.PlaySounds)

	app.recMgr = recording.New(recording.Deps{
		Recorder:    app.recorder,
		Transcriber: app.transcriber,
		Dictionary:  app.dict,
		Paster:      app.clipboard,
		Notifier:    app.notifier,
		Config:      app.config,
		Logger:      app.logger,
		OnStateChange: func(s recording.State) {
			if app.trayMgr != nil {
				app.trayMgr.SetState(trayState(s))
			}
		},
	})

	app.hotkeyMgr = hotkey.New()

	app.httpServer = server.New(server.DefaultConfig(), app.logger)
	app.apiHandler = api.New(api.Deps{
		Config:          app.config,
		ConfigPath:      app.configPath,
		Wizard:          app.wizard,
		Recorder:        app.recMgr,
		Levels:          app.monitor,
		Devices:         app.backend,
		Dictionary:      app.dict,
		OnConfigChanged: app.applySettings,
		Logger:          app.logger,
	})
	app.apiHandler.RegisterRoutes(app.httpServer.GetMux())

	app.trayMgr = tray.NewManager(tray.Config{
		OnReady:        app.onReady,
		OnToggle:       func() { app.recMgr.ToggleRecording() },
		OnSettings:     app.handleOpenSettings,
		OnDeviceSelect: app.handleDeviceSelect,
		OnQuit:         app.handleQuit,
		Logger:         app.logger,
	})

	// Blocks until the tray loop exits
	app.trayMgr.Run()
}

// detectLanguage picks the UI language from the system locale on first run
func (a *App) detectLanguage() {
	lang := i18n.DetectSystemLanguage()
	if string(lang) == a.config.Clone().UI.Language {
		return
	}

	err := a.config.Update(map[string]interface{}{
		"ui": map[string]interface{}{"language": string(lang)},
	})
	if err != nil {
		a.logger.Warn("Failed to set detected language: %v", err)
		return
	}
	if err := a.config.Save(a.configPath); err != nil {
		a.logger.Warn("Failed to save detected language: %v", err)
	}
	a.logger.Info("UI language detected from locale: %s", lang)
}

// onReady finishes initialization once the tray menu exists
func (a *App) onReady() {
	a.logger.Info("System tray ready")

	a.runEnvironmentChecks()
	a.registerHotkeys()

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("Failed to start settings server: %v", err)
		a.notifier.SendError(appName, "Failed to start the settings page server")
	}

	a.refreshDeviceMenu()

	if a.config.Clone().APIKey == "" {
		a.logger.Warn("API key is not configured")
		a.notifier.APIKeyMissing()
	}

	// 初回起動はそのまま設定画面を開く
	if a.isFirstRun {
		a.logger.Info("First run detected, opening the settings page")
		a.handleOpenSettings()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.logger.Info("Termination signal received")
		a.handleQuit()
		a.trayMgr.Quit()
	}()

	a.printBanner()
	a.logger.Info("Application ready")
}

// runEnvironmentChecks probes the desktop environment and reports problems.
// Missing facilities degrade features, they never abort startup.
func (a *App) runEnvironmentChecks() {
	checks := syscheck.NewChecker().RunAll()
	for _, check := range checks {
		switch check.Status {
		case syscheck.StatusOK:
			a.logger.Info("Environment check %s: %s", check.Name, check.Detail)
		case syscheck.StatusDegraded:
			a.logger.Warn("Environment check %s: %s", check.Name, check.Detail)
		default:
			a.logger.Error("Environment check %s: %s", check.Name, check.Detail)
		}
	}

	if msg := syscheck.ProblemMessage(checks); msg != "" {
		a.notifier.SendWarning(appName, msg)
	}
}

// registerHotkeys binds the configured shortcuts and starts the event pump
func (a *App) registerHotkeys() {
	shortcuts := a.config.Clone().Shortcuts
	bindings, err := hotkey.ParseShortcuts(shortcuts.ToggleRecording,
		shortcuts.CopyToClipboard, shortcuts.ClearTranscript, shortcuts.AutoPaste)
	if err != nil {
		a.logger.Error("Invalid shortcut configuration: %v", err)
		a.notifier.SendWarning(appName, fmt.Sprintf("Shortcuts disabled: %v", err))
		return
	}

	if err := a.hotkeyMgr.Register(bindings); err != nil {
		a.logger.Error("Failed to register hotkeys: %v", err)
		a.notifier.SendWarning(appName, fmt.Sprintf("Shortcuts disabled: %v", err))
		return
	}

	a.activeBindings = bindings
	a.recMgr.Start(a.hotkeyMgr.Events())

	for _, b := range bindings {
		a.logger.Info("Hotkey registered: %s (%s)",
			hotkey.FormatHotkey(b.Modifiers, b.Key), b.Action)
	}
}

// applySettings reapplies a saved configuration to the running components.
// The settings API calls it after every successful save.
func (a *App) applySettings() error {
	snapshot := a.config.Clone()
	a.logger.Info("Applying updated settings")

	if i18n.GlobalTranslator.GetLanguage() != i18n.Language(snapshot.UI.Language) {
		i18n.GlobalTranslator.SetLanguage(i18n.Language(snapshot.UI.Language))
		a.trayMgr.RefreshLabels()
	}

	a.notifier.SetEnabled(snapshot.UI.NotificationsEnabled)
	a.notifier.SetPlaySounds(snapshot.Recording.PlaySounds)
	a.transcriber.SetAPIKey(snapshot.APIKey)

	audioCfg, err := audioConfigFrom(a.config)
	if err != nil {
		return fmt.Errorf("invalid audio settings: %w", err)
	}
	a.recorder.UpdateConfig(audioCfg)

	if err := a.reloadHotkeys(snapshot); err != nil {
		return err
	}

	a.refreshDeviceMenu()
	return nil
}

// reloadHotkeys re-registers the shortcuts after a settings change and
// rolls back to the previous bindings when the new ones fail
func (a *App) reloadHotkeys(snapshot *config.Config) error {
	shortcuts := snapshot.Shortcuts
	bindings, err := hotkey.ParseShortcuts(shortcuts.ToggleRecording,
		shortcuts.CopyToClipboard, shortcuts.ClearTranscript, shortcuts.AutoPaste)
	if err != nil {
		return fmt.Errorf("invalid shortcuts: %w", err)
	}

	if a.hotkeyMgr.IsRunning() {
		if err := a.hotkeyMgr.Close(); err != nil {
			a.logger.Warn("Failed to release previous hotkeys: %v", err)
		}
	}

	if err := a.hotkeyMgr.Register(bindings); err != nil {
		a.logger.Error("Failed to register new hotkeys: %v", err)
		if len(a.activeBindings) > 0 {
			if rbErr := a.hotkeyMgr.Register(a.activeBindings); rbErr != nil {
				a.logger.Error("Hotkey rollback failed: %v", rbErr)
			} else {
				a.recMgr.Start(a.hotkeyMgr.Events())
				a.logger.Warn("Kept the previous hotkeys")
			}
		}
		return fmt.Errorf("failed to register hotkeys: %w", err)
	}

	a.activeBindings = bindings
	a.recMgr.Start(a.hotkeyMgr.Events())

	for _, b := range bindings {
		a.logger.Info("Hotkey registered: %s (%s)",
			hotkey.FormatHotkey(b.Modifiers, b.Key), b.Action)
	}
	return nil
}

// refreshDeviceMenu rebuilds the tray device submenu from the backend
func (a *App) refreshDeviceMenu() {
	devices, err := a.backend.InputDevices()
	if err != nil {
		a.logger.Warn("Failed to enumerate input devices: %v", err)
		return
	}

	configured := a.config.Clone().Recording.InputDevice

	items := make([]tray.Device, 0, len(devices))
	for _, dev := range devices {
		current := dev.Name == configured
		if configured == "" {
			current = dev.IsDefault
		}
		items = append(items, tray.Device{
			Name:      dev.Name,
			IsDefault: dev.IsDefault,
			IsCurrent: current,
		})
	}

	a.trayMgr.UpdateDeviceMenu(items)
}

// handleDeviceSelect stores the chosen input device in the configuration
func (a *App) handleDeviceSelect(name string) {
	a.logger.Info("Input device selected: %s", name)

	err := a.config.Update(map[string]interface{}{
		"recording": map[string]interface{}{"input_device": name},
	})
	if err != nil {
		a.logger.Error("Failed to update input device: %v", err)
		return
	}
	if err := a.config.Save(a.configPath); err != nil {
		a.logger.Error("Failed to save configuration: %v", err)
	}

	a.refreshDeviceMenu()
}

// handleOpenSettings opens the settings page in the default browser
func (a *App) handleOpenSettings() {
	if !a.httpServer.IsRunning() {
		a.logger.Error("Settings server is not running")
		a.notifier.SendError(appName, "The settings page is unavailable, restart the application")
		return
	}

	url := a.httpServer.URL()
	a.logger.Info("Opening settings page: %s", url)

	go func() {
		if err := exec.Command("xdg-open", url).Run(); err != nil {
			a.logger.Error("Failed to open browser: %v", err)
			fmt.Printf("Open the settings page manually: %s\n", url)
		}
	}()
}

// handleQuit tears the components down in reverse dependency order.
// Safe to call more than once, every step is idempotent.
func (a *App) handleQuit() {
	a.logger.Info("Shutting down")

	if a.hotkeyMgr != nil {
		if err := a.hotkeyMgr.Close(); err != nil {
			a.logger.Warn("Failed to release hotkeys: %v", err)
		}
	}

	if a.httpServer != nil && a.httpServer.IsRunning() {
		if err := a.httpServer.Stop(); err != nil {
			a.logger.Error("Failed to stop settings server: %v", err)
		}
	}

	if a.recMgr != nil {
		if err := a.recMgr.Stop(); err != nil {
			a.logger.Error("Failed to stop recording manager: %v", err)
		}
	}

	if a.monitor != nil {
		a.monitor.Stop()
	}

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Warn("Failed to close recorder: %v", err)
		}
	}

	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Warn("Failed to close audio backend: %v", err)
		}
	}

	a.logger.Info("Shutdown complete")
}

// printBanner writes the startup summary to the terminal
func (a *App) printBanner() {
	shortcuts := a.config.Clone().Shortcuts

	fmt.Println()
	fmt.Println("==========================================================")
	fmt.Printf("  %s v%s is running\n", appName, version)
	fmt.Println("==========================================================")
	if a.httpServer.IsRunning() {
		fmt.Printf("  Settings page:    %s\n", a.httpServer.URL())
	}
	fmt.Printf("  Toggle recording: %s\n", shortcuts.ToggleRecording)
	fmt.Printf("  Copy transcript:  %s\n", shortcuts.CopyToClipboard)
	fmt.Println("  Quit with Ctrl+C or from the tray menu")
	fmt.Println("==========================================================")
	fmt.Println()
}

// trayState maps pipeline states onto tray icons
func trayState(s recording.State) tray.State {
	switch s {
	case recording.Recording:
		return tray.StateRecording
	case recording.Transcribing:
		return tray.StateTranscribing
	default:
		return tray.StateIdle
	}
}

// audioConfigFrom builds the capture configuration from the user settings
func audioConfigFrom(cfg *config.Config) (audio.Config, error) {
	snapshot := cfg.Clone()
	ac := audio.DefaultConfig()

	if snapshot.TempDir != "" {
		dir, err := snapshot.GetTempDir()
		if err != nil {
			return ac, fmt.Errorf("invalid temp_dir: %w", err)
		}
		ac.OutputDir = dir
	}

	format, err := audio.ParseSampleFormat(snapshot.Recording.SampleFormat)
	if err != nil {
		return ac, err
	}
	ac.Format = format

	ac.SampleRate = snapshot.Recording.SampleRate
	ac.MaxDuration = time.Duration(snapshot.Recording.MaxDurationSecs) * time.Second
	ac.DisableSilenceDetection = snapshot.Recording.DisableSilenceDetection

	return ac, nil
}
