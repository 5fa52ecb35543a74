package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/WuKongIM/wkkv/internal/options"
	"github.com/WuKongIM/wkkv/internal/server"
	"github.com/WuKongIM/wkkv/pkg/wklog"
	"github.com/fsnotify/fsnotify"
	"github.com/judwhite/go-svc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile    string
	serverOpts = options.New()
	rootCmd    = &cobra.Command{
		Use:   "wkkv",
		Short: "wkkv, a raft replicated key/value store with linearizable reads.",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			initServer()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().Uint64("id", 0, "node id")
	rootCmd.PersistentFlags().String("httpAddr", "", "http listen address, e.g. 0.0.0.0:5001")
	rootCmd.PersistentFlags().String("dataDir", "", "data directory")
	rootCmd.PersistentFlags().StringSlice("peers", nil, "cluster peers, e.g. 1@http://127.0.0.1:5001")

	rootCmd.AddCommand(newVersionCMD().CMD())
}

func initConfig() {
	vp := viper.New()
	if cfgFile != "" {
		vp.SetConfigFile(cfgFile)
		if err := vp.ReadInConfig(); err == nil {
			fmt.Println("Using config file:", vp.ConfigFileUsed())
		}
	}

	vp.SetEnvPrefix("wk")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	if err := vp.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		log.Fatal(err)
	}
	// 初始化服务配置
	if err := serverOpts.ConfigureWithViper(vp); err != nil {
		log.Fatal(err)
	}
	options.G = serverOpts

	if cfgFile != "" {
		// 配置文件修改后只热更新日志级别，其他配置需要重启
		vp.OnConfigChange(func(e fsnotify.Event) {
			level := vp.GetInt("logger.level")
			if level == 0 {
				return
			}
			wklog.SetLevel(zapcore.Level(level - 2))
			wklog.Info("logger level changed", zap.String("file", e.Name), zap.Int("level", level))
		})
		vp.WatchConfig()
	}
}

func initServer() {
	logOpts := wklog.NewOptions()
	logOpts.NodeId = serverOpts.ID
	logOpts.Level = serverOpts.Logger.Level
	logOpts.LogDir = serverOpts.Logger.Dir
	logOpts.LineNum = serverOpts.Logger.LineNum
	wklog.Configure(logOpts)

	s := server.New(serverOpts)

	if err := svc.Run(s); err != nil {
		log.Fatal(err)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
