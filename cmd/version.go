package cmd

import (
	"fmt"
	"runtime"

	"github.com/WuKongIM/wkkv/version"
	"github.com/spf13/cobra"
)

type versionCMD struct {
}

func newVersionCMD() *versionCMD {
	return &versionCMD{}
}

func (v *versionCMD) CMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "print the wkkv version",
		Run:   v.run,
	}
	return cmd
}

func (v *versionCMD) run(cmd *cobra.Command, args []string) {
	fmt.Printf("wkkv %s (%s-%s) %s\n", version.Version, version.CommitDate, version.Commit, runtime.Version())
}
