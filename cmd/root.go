package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/octoftp/internal/downloader"
	"github.com/tanq16/octoftp/internal/output"
	"github.com/tanq16/octoftp/internal/utils"
)

var (
	configPath    string
	host          string
	port          int
	user          string
	password      string
	useTLS        bool
	insecure      bool
	timeout       time.Duration
	connections   int
	rotate        time.Duration
	workers       int
	checksumAlgo  string
	force         bool
	caFile        string
	keepAlive     time.Duration
	socketBuffer  int
	disableEPSV   bool
	debug         bool
	logFile       string
	cfg           utils.Config
	logCloser     io.Closer = io.NopCloser(nil)
	displayActive bool
	engineOpts    []downloader.Option
)

var OctoVersion = "dev"

// Commands annotated offline run without a server; display commands get the
// live progress view when stdout is a terminal.
const (
	annotationOffline = "offline"
	annotationDisplay = "display"
)

var rootCmd = &cobra.Command{
	Use:               "octoftp",
	Short:             "octoftp is a segmented FTP/FTPS downloader",
	Version:           OctoVersion,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logCloser.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default $XDG_CONFIG_HOME/octoftp/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "", "FTP server host")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "P", utils.DefaultPort, "FTP server port")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "anonymous", "Login user")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "Login password (or set "+utils.PasswordEnv+")")
	rootCmd.PersistentFlags().BoolVar(&useTLS, "tls", false, "Use explicit FTPS (AUTH TLS)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", utils.DefaultConnectTimeout, "Connection timeout (eg. 5s, 1m)")
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", utils.DefaultConnections, "Number of parallel connections per file")
	rootCmd.PersistentFlags().DurationVarP(&rotate, "rotate", "r", utils.DefaultRotateInterval, "Reconnect each chunk after this long (eg. 30s)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "Number of files to download in parallel")
	rootCmd.PersistentFlags().StringVar(&checksumAlgo, "checksum", utils.DefaultChecksum, "Digest computed after download (none to skip)")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "Overwrite existing files instead of renaming")
	rootCmd.PersistentFlags().DurationVarP(&keepAlive, "keep-alive-timeout", "k", utils.DefaultKeepAlive, "TCP keep-alive period for server connections (eg. 30s)")

	// flags without shorthand
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&caFile, "ca-file", "", "PEM file with CA certificates trusted for FTPS")
	rootCmd.PersistentFlags().IntVar(&socketBuffer, "socket-buffer", 0, "Socket receive/send buffer size in bytes (0 keeps the OS default)")
	rootCmd.PersistentFlags().BoolVar(&disableEPSV, "disable-epsv", false, "Use PASV only, for servers that mishandle EPSV")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file (default "+utils.LogFile+" while the progress view is shown)")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newSizeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newChecksumCmd())
	rootCmd.AddCommand(newCleanCmd())
}

func setup(cmd *cobra.Command, args []string) error {
	displayActive = cmd.Annotations[annotationDisplay] == "true" && output.IsTerminal()
	target := logFile
	if target == "" && displayActive {
		target = utils.LogFile
	}
	closer, err := utils.InitLogger(debug, target)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logCloser = closer

	path, allowMissing := configPath, false
	if path == "" {
		path, allowMissing = utils.DefaultConfigPath(), true
	}
	cfg, err = utils.LoadConfig(path, allowMissing)
	if err != nil {
		return err
	}
	cfg.LoadFromEnv()
	applyFlags(cmd)
	log := utils.GetLogger("cmd")
	log.Debug().Str("config", path).Str("host", cfg.Server.Host).Msg("Configuration loaded")
	if cmd.Annotations[annotationOffline] == "true" {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	engineOpts, err = engineOptions(cfg)
	return err
}

// applyFlags copies every flag the user set over the loaded config.
func applyFlags(cmd *cobra.Command) {
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}
	if changed("host") {
		cfg.Server.Host = host
	}
	if changed("port") {
		cfg.Server.Port = port
	}
	if changed("user") {
		cfg.Server.Username = user
		if !changed("password") && os.Getenv(utils.PasswordEnv) == "" {
			cfg.Server.Password = ""
		}
	}
	if changed("password") {
		cfg.Server.Password = password
	}
	if changed("tls") {
		cfg.Server.UseTLS = useTLS
	}
	if changed("insecure") {
		cfg.Server.Insecure = insecure
	}
	if changed("timeout") {
		cfg.Server.Timeout = timeout
	}
	if changed("connections") {
		cfg.Connections = connections
	}
	if changed("rotate") {
		cfg.RotateInterval = rotate
	}
	if changed("workers") {
		cfg.Workers = workers
	}
	if changed("checksum") {
		cfg.Checksum = checksumAlgo
	}
	if changed("ca-file") {
		cfg.CAFile = caFile
	}
	if changed("keep-alive-timeout") {
		cfg.KeepAlive = keepAlive
	}
	if changed("socket-buffer") {
		cfg.SocketBuffer = socketBuffer
	}
	if changed("disable-epsv") {
		cfg.DisableEPSV = disableEPSV
	}
}

// exit flushes the log file before leaving, since os.Exit skips post-run hooks.
func exit(code int) {
	logCloser.Close()
	os.Exit(code)
}
