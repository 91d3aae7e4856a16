package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/beekhof/shiftsync/internal/auth"
	"github.com/beekhof/shiftsync/internal/calendar"
	"github.com/beekhof/shiftsync/internal/config"
	"github.com/beekhof/shiftsync/internal/extract"
	"github.com/beekhof/shiftsync/internal/message"
	"github.com/beekhof/shiftsync/internal/portal"
	"github.com/beekhof/shiftsync/internal/status"
	"github.com/beekhof/shiftsync/internal/sync"

	"golang.org/x/oauth2"
	"golang.org/x/term"
	gcal "google.golang.org/api/calendar/v3"
)

func printHelp() {
	fmt.Fprintf(os.Stderr, `Shift Sync Tool

Reads your work schedule from the scheduling portal and adds every worked
shift as an event to one or more calendars (Google Calendar, a CalDAV
calendar such as iCloud, or a local .ics file).

USAGE:
    %s [OPTIONS]

OPTIONS:
    -h, --help                    Show this help message and exit
    -v, --verbose                 Enable verbose output (show DEBUG logs)
    --config FILE                 Path to JSON or YAML config file (required)
    --init-config FILE            Write an example config file and exit
    --destination NAME            Sync only to the named destination (optional)
                                  If not specified, syncs to all destinations
    --html-file PATH              Read the schedule from a saved portal page
                                  instead of opening a browser
    --google-credentials-path PATH Path to Google OAuth credentials JSON file
                                  (overrides config file and GOOGLE_CREDENTIALS_PATH env var)
    --timezone ZONE               IANA timezone of the schedule, e.g. America/New_York
                                  (overrides config file and TIMEZONE env var)
    --continue-on-error           Keep publishing after a shift fails
                                  (overrides config file and FAILURE_POLICY env var)
    --listen ADDR                 Status server address, or "off"
                                  (overrides config file and STATUS_LISTEN env var)

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (also read from ./.env)
    3. Config file (--config)
    4. Defaults

CONFIG FILE:
    {
      "portal_url": "https://portal.example.com/schedule",
      "google_credentials_path": "/path/to/credentials.json",
      "token_path": "/path/to/token.json",
      "timezone": "America/New_York",
      "event_summary": "Work Shift",
      "event_location": "Cumberland Farms",
      "poll_timeout_seconds": 300,
      "off_markers": ["Off"],
      "failure_policy": "stop",
      "destinations": [
        {"name": "Personal Google", "type": "google", "calendar_id": "primary"},
        {
          "name": "iCloud",
          "type": "caldav",
          "server_url": "https://caldav.icloud.com",
          "calendar_path": "/123456789/calendars/work/",
          "username": "your-email@icloud.com",
          "password": "app-specific-password"
        },
        {"name": "Local", "type": "ics", "output_path": "shifts.ics"}
      ]
    }

    The Google credentials JSON file should be in the format downloaded from
    Google Cloud Console. It should contain either an "installed" or "web"
    section with "client_id" and "client_secret" fields.

ENVIRONMENT VARIABLES:
        PORTAL_URL                URL of the portal schedule page
        GOOGLE_CREDENTIALS_PATH   Path to Google OAuth credentials JSON file
        TOKEN_PATH                Path to store the Google OAuth token
        TIMEZONE                  IANA timezone of the schedule
        FAILURE_POLICY            "stop" (default) or "continue"
        POLL_TIMEOUT_SECONDS      How long to wait for the schedule table (negative: forever)
        STATUS_LISTEN             Status server address, or "off"

DESCRIPTION:
    A Chromium window opens on the portal. Log in as usual; if the portal asks
    for an MFA code you can type it in the window or send it to the status
    server (POST /api/mfa {"code": "123456"}). Once the schedule table renders,
    every worked shift is read, rows marked "Off" are skipped, and one event per
    shift is created in each destination. Progress is logged and served on
    GET /api/status and GET /ws.

    Events are only ever added. Running the tool twice for the same schedule
    creates duplicate events.

EXAMPLES:
    # Sync from the portal to every destination
    %s --config /path/to/config.json

    # Import a saved schedule page into a local .ics file only
    %s --config /path/to/config.json --html-file schedule.html --destination Local

    # Show help
    %s --help

`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

type options struct {
	configFile string
	htmlFile   string
	verbose    bool
	flags      config.Flags
}

func main() {
	// Parse command-line flags
	helpFlag := flag.Bool("help", false, "Show help message")
	helpFlagShort := flag.Bool("h", false, "Show help message (shorthand)")
	verboseFlag := flag.Bool("verbose", false, "Enable verbose output (show DEBUG logs)")
	verboseFlagShort := flag.Bool("v", false, "Enable verbose output (shorthand)")
	configFile := flag.String("config", "", "Path to JSON or YAML config file (required)")
	initConfig := flag.String("init-config", "", "Write an example config file and exit")
	destinationName := flag.String("destination", "", "Sync only to the named destination (optional)")
	htmlFile := flag.String("html-file", "", "Read the schedule from a saved portal page")
	googleCredentialsPath := flag.String("google-credentials-path", "", "Path to Google OAuth credentials JSON file (overrides config file and GOOGLE_CREDENTIALS_PATH env var)")
	timeZone := flag.String("timezone", "", "IANA timezone of the schedule (overrides config file and TIMEZONE env var)")
	continueOnError := flag.Bool("continue-on-error", false, "Keep publishing after a shift fails")
	listen := flag.String("listen", "", "Status server address, or \"off\" (overrides config file and STATUS_LISTEN env var)")
	flag.Parse()

	// Show help if requested
	if *helpFlag || *helpFlagShort {
		printHelp()
		os.Exit(0)
	}

	// Set up logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *initConfig != "" {
		if err := config.Save(*initConfig, exampleConfig()); err != nil {
			log.Fatalf("Failed to write example config: %v", err)
		}
		log.Printf("Wrote example config to %s", *initConfig)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("Warning: %v", err)
	}

	if *configFile == "" {
		log.Fatalf("--config FILE is required. Use --help for more information.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, options{
		configFile: *configFile,
		htmlFile:   *htmlFile,
		verbose:    *verboseFlag || *verboseFlagShort,
		flags: config.Flags{
			GoogleCredentialsPath: *googleCredentialsPath,
			TimeZone:              *timeZone,
			ContinueOnError:       *continueOnError,
			Listen:                *listen,
			Destination:           *destinationName,
		},
	})
	if err != nil {
		stop()
		log.Fatalf("Sync failed: %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	// Load configuration (precedence: flags > env vars > config file > defaults)
	cfg, err := config.LoadConfig(opts.configFile, opts.flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.flags.Destination != "" {
		log.Printf("Syncing only to destination: %s", opts.flags.Destination)
	}

	policy, err := sync.ParsePolicy(cfg.FailurePolicy)
	if err != nil {
		return err
	}

	tmpl, err := calendar.NewEventTemplate(cfg.EventSummary, cfg.EventLocation, cfg.TimeZone)
	if err != nil {
		return err
	}

	hub := status.NewHub()
	listener := sync.MultiListener{sync.LogListener{}, hub}

	var googleOAuthConfig *oauth2.Config
	if cfg.NeedsGoogle() {
		googleOAuthConfig, err = newGoogleOAuthConfig(cfg.GoogleCredentialsPath)
		if err != nil {
			return err
		}
	}

	var orchestrators []*sync.Orchestrator
	for _, dest := range cfg.Destinations {
		provider, publisher, err := newTarget(dest, tmpl, googleOAuthConfig)
		if err != nil {
			return fmt.Errorf("%s: %w", dest.Name, err)
		}
		log.Printf("Publishing to destination: %s (type: %s)", dest.Name, dest.Type)
		orchestrators = append(orchestrators, sync.NewOrchestrator(provider, publisher, listener, policy))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Pick the schedule source
	var (
		doc     extract.Document
		session *portal.Session
	)
	if opts.htmlFile != "" {
		doc, err = extract.LoadHTMLFile(opts.htmlFile, cfg.Selectors)
		if err != nil {
			return err
		}
	} else {
		if cfg.PortalURL == "" {
			return errors.New("portal_url must be provided via PORTAL_URL environment variable or config file (or use --html-file)")
		}
		session, err = portal.Open(ctx, portal.Options{
			URL:       cfg.PortalURL,
			Headless:  cfg.Headless,
			Selectors: cfg.Selectors,
			Verbose:   opts.verbose,
		})
		if err != nil {
			return err
		}
		defer session.Close()
		doc = session
	}

	inbound := make(chan message.Message, 4)

	if cfg.Listen != "off" {
		go func() {
			if err := status.Serve(ctx, cfg.Listen, status.NewRouter(hub, inbound)); err != nil {
				log.Printf("Warning: status server stopped: %v", err)
			}
		}()
	}

	// Every orchestrator reports exactly one result per schedule.
	results := make(chan sync.Result, len(orchestrators))
	dispatchOpts := []sync.DispatcherOption{
		sync.WithListener(listener),
		sync.WithVerbose(opts.verbose),
		sync.WithResultHandler(func(r sync.Result) { results <- r }),
	}
	if session != nil {
		dispatchOpts = append(dispatchOpts, sync.WithMFARelay(session))
	}
	dispatcher := sync.NewDispatcher(orchestrators, dispatchOpts...)
	go func() {
		if err := dispatcher.Run(ctx, inbound); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Warning: dispatcher stopped: %v", err)
		}
	}()

	extractor := extract.NewExtractor(doc, extract.Options{
		PollInterval: cfg.PollInterval(),
		Timeout:      cfg.PollTimeout(),
		OffMarkers:   cfg.OffMarkers,
		Verbose:      opts.verbose,
	})
	if err := extractor.Run(ctx, inbound); err != nil {
		listener.Notify(sync.Status{Kind: sync.StatusError, Text: "Error: " + err.Error()})
		return fmt.Errorf("failed to extract schedule: %w", err)
	}

	// Report results
	var syncErrors []error
	for range orchestrators {
		select {
		case r := <-results:
			if r.Err != nil {
				syncErrors = append(syncErrors, fmt.Errorf("%s: %w", r.Destination, r.Err))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(syncErrors) > 0 {
		log.Printf("Sync completed with %d error(s) out of %d destination(s)", len(syncErrors), len(orchestrators))
		for _, err := range syncErrors {
			log.Printf("  - %v", err)
		}
		return errors.Join(syncErrors...)
	}

	log.Printf("All syncs completed successfully (%d destination(s))", len(orchestrators))
	return nil
}

// newGoogleOAuthConfig loads the client credentials downloaded from the
// Google Cloud Console.
func newGoogleOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	clientID, clientSecret, err := config.LoadGoogleCredentials(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load Google credentials: %w", err)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://127.0.0.1:8080", // Will be updated dynamically by auth flow
		Scopes:       []string{gcal.CalendarEventsScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}, nil
}

// newTarget builds the credential provider and publisher for one destination.
func newTarget(dest config.Destination, tmpl calendar.EventTemplate, googleOAuthConfig *oauth2.Config) (sync.CredentialProvider, sync.Publisher, error) {
	switch dest.Type {
	case config.TypeGoogle:
		// The consent flow needs someone at the keyboard to open the browser.
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		provider := auth.NewGoogleProvider(googleOAuthConfig, auth.NewFileTokenStore(dest.TokenPath), interactive)
		return provider, calendar.NewGooglePublisher(dest.Name, dest.CalendarID, tmpl), nil
	case config.TypeCalDAV:
		return auth.NewBasicProvider(dest.Username, dest.Password),
			calendar.NewCalDAVPublisher(dest.Name, dest.ServerURL, dest.CalendarPath, tmpl), nil
	case config.TypeICS:
		return auth.NewAnonymousProvider(), calendar.NewICSPublisher(dest.Name, dest.OutputPath, tmpl), nil
	default:
		return nil, nil, fmt.Errorf("unsupported destination type %q", dest.Type)
	}
}

func exampleConfig() *config.Config {
	return &config.Config{
		PortalURL:             "https://portal.example.com/schedule",
		GoogleCredentialsPath: "credentials.json",
		TokenPath:             config.DefaultTokenPath,
		TimeZone:              config.DefaultTimeZone,
		EventSummary:          config.DefaultSummary,
		EventLocation:         config.DefaultLocation,
		OffMarkers:            []string{"Off"},
		Selectors:             extract.DefaultSelectors(),
		FailurePolicy:         "stop",
		Listen:                config.DefaultListen,
		Destinations: []config.Destination{
			{Name: "Personal Google", Type: config.TypeGoogle, CalendarID: "primary"},
			{Name: "Local", Type: config.TypeICS, OutputPath: "shifts.ics"},
		},
	}
}
