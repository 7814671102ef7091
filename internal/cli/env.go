package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wwwzy/GraphPilot/internal/docker"
)

// envCmd 管理持久的测试环境。删除环境只能通过这里显式完成。
var envCmd = &cobra.Command{
	Use:   "env",
	Short: "管理测试环境容器",
}

var envStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示测试环境状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		env, err := newEnvironment(ctx)
		if err != nil {
			return err
		}
		rc := env.Config()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "Container\t%s\n", rc.ContainerName)
		fmt.Fprintf(w, "Repository\t%s -> %s\n", rc.RepoURL, rc.RepoDir)
		fmt.Fprintf(w, "Volume\t%s\n", rc.Volume)

		info, err := docker.InspectContainer(ctx, rc.ContainerName)
		if errors.Is(err, docker.ErrNotFound) {
			fmt.Fprintf(w, "State\tabsent\n")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Image\t%s\n", info.Image)
		fmt.Fprintf(w, "State\t%s\n", info.Status)
		fmt.Fprintf(w, "Created\t%s\n", info.Created)

		_, cloned, err := env.Probe(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Cloned\t%t\n", cloned)
		return nil
	},
}

var envLogsTail int

var envLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "查看测试环境容器日志",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		tail := "all"
		if envLogsTail > 0 {
			tail = strconv.Itoa(envLogsTail)
		}
		logs, err := docker.GetContainerLogs(ctx, docker.GetContainerLogsOptions{
			Container: cfg.Runner.ContainerName,
			Tail:      tail,
		})
		if err != nil {
			return err
		}
		fmt.Print(logs)
		return nil
	},
}

var envRemoveVolume bool

var envRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "删除测试环境容器",
	Long:  `删除测试环境容器，下次初始化时重新创建。加 --volume 同时删除工作卷 (已克隆的仓库)。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		env, err := newEnvironment(ctx)
		if err != nil {
			return err
		}
		if err := env.Remove(ctx, envRemoveVolume); err != nil {
			return err
		}
		fmt.Printf("已删除 %s", env.Name())
		if envRemoveVolume {
			fmt.Printf(" 及数据卷 %s", env.Config().Volume)
		}
		fmt.Println()
		return nil
	},
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出 GraphPilot 管理的容器和数据卷",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		managed := map[string]string{docker.LabelManaged: "true"}
		containers, err := docker.ListContainers(ctx, managed)
		if err != nil {
			return err
		}
		volumes, err := docker.ListVolumes(ctx, managed)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "CONTAINER\tIMAGE\tSTATE\tSTATUS")
		for _, c := range containers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Names, c.Image, c.State, c.Status)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "VOLUME\tDRIVER\tCREATED")
		for _, v := range volumes {
			fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name, v.Driver, v.CreatedAt)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.AddCommand(envStatusCmd, envLogsCmd, envRemoveCmd, envListCmd)

	envLogsCmd.Flags().IntVar(&envLogsTail, "tail", 200, "只显示最后 N 行 (0 表示全部)")
	envRemoveCmd.Flags().BoolVar(&envRemoveVolume, "volume", false, "同时删除工作卷")
}
