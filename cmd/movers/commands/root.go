package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose      bool
	universeFile string
)

// rootCmd runs the pipeline once when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "movers",
	Short: "Daily top movers pipeline",
	Long: `Daily movers batch pipeline

유니버스의 각 종목에 대해 최근 일봉을 수집하고
이동평균/수익률/변동성을 계산해 일자별 파티션으로 저장한 뒤
상승/하락 상위 종목 리포트를 발행합니다.

Usage:
  go run ./cmd/movers [command]

Examples:
  go run ./cmd/movers
  go run ./cmd/movers run --date 2024-03-15
  go run ./cmd/movers schedule
  go run ./cmd/movers universe`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOnce,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err.Error())
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&universeFile, "universe", "", "universe YAML file (overrides UNIVERSE_FILE)")
	addRunFlags(rootCmd)
}
