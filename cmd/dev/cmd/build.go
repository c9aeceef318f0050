package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

const (
	binary        = "dist/sen44"
	mainPackage   = "./cmd/sen44"
	configPackage = "github.com/mklimuk/sen44/config"
	builderImage  = "gophertribe/gobuild:1.25-bookworm"
)

// target resolves the platform to build for; native is false when a docker build is needed.
func target(goos, goarch, crossOS, crossArch string) (os, arch string, native bool) {
	if goos != runtime.GOOS || goarch != runtime.GOARCH {
		return goos, goarch, false
	}
	if crossOS != "" && crossArch != "" {
		return crossOS, crossArch, true
	}
	return goos, goarch, true
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the sen44 cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			version, _ := flags.GetString("version")
			crossOS, _ := flags.GetString("cross-os")
			crossArch, _ := flags.GetString("cross-arch")
			goos, _ := flags.GetString("os")
			goarch, _ := flags.GetString("arch")

			os, arch, native := target(goos, goarch, crossOS, crossArch)
			if native {
				// cgo is required by the HID and SQLite bindings
				return build.GoBuild(binary, mainPackage, build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: configPackage,
					EnableCgo:     true,
					Arch:          arch,
					OS:            os,
				})
			}

			noCache, err := flags.GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", os, arch), []string{"build", "--version", version, "--cross-os", crossOS, "--cross-arch", crossArch}, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   builderImage,
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")
	return cmd
}
