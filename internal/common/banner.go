package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	build := GetBuild()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("TASKQUEUE")
	b.PrintCenteredText("Task Queue Scheduler")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Build", build, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("SQLite Path", config.Storage.SQLite.Path, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("environment", config.Environment).
		Str("sqlite_path", config.Storage.SQLite.Path).
		Int("max_connections", config.MaxConnections).
		Str("housekeeping_schedule", config.Housekeeping.Schedule).
		Msg("Application started")

	logFilePath := ""
	if loggerWithPath, ok := interface{}(logger).(interface{ GetLogFilePath() string }); ok {
		logFilePath = loggerWithPath.GetLogFilePath()
	}
	logger.Info().
		Str("log_file", logFilePath).
		Int("cpu_time_buckets", len(config.CPUTimeBuckets)).
		Int("platform_order_edges", len(config.PlatformOrder)).
		Msg("Configuration loaded")
}

// PrintShutdownBanner displays the application shutdown banner
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("TASKQUEUE")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("Application shutting down")
}

// PrintColorizedMessage prints a message with specified color; it does not log (logger is unused)
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("✓ %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("✗ %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("⚠ %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}
