// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"ingest-platform/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("ingest-platform cli 0.1.0")
	case "health":
		os.Exit(runHealth(os.Stdout, os.Stderr))
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runGo("./cmd/api")
		} else {
			fmt.Fprintf(os.Stderr, "Usage: ingest server start\n")
			os.Exit(1)
		}
	case "worker":
		if len(args) > 0 && args[0] == "start" {
			runGo("./cmd/worker")
		} else {
			fmt.Fprintf(os.Stderr, "Usage: ingest worker start\n")
			os.Exit(1)
		}
	case "submit":
		os.Exit(runSubmit(args, os.Stdout, os.Stderr))
	case "status":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: ingest status <job_id>\n")
			os.Exit(1)
		}
		os.Exit(runStatus(args[0], os.Stdout, os.Stderr))
	case "events":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: ingest events <job_id>\n")
			os.Exit(1)
		}
		os.Exit(runEvents(args[0], os.Stdout, os.Stderr))
	case "wait":
		if len(args) < 1 {
			fmt.Fprintf(os.Stderr, "Usage: ingest wait <job_id>\n")
			os.Exit(1)
		}
		os.Exit(runWait(args[0], time.Second, 600, os.Stdout, os.Stderr))
	case "controllers":
		os.Exit(runControllers(os.Stdout, os.Stderr))
	default:
		printUsage(os.Stdout)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ingest <command> [args]")
	fmt.Fprintln(w, "  version         - 显示版本")
	fmt.Fprintln(w, "  health          - 检查 API 服务")
	fmt.Fprintln(w, "  config          - 显示配置概要")
	fmt.Fprintln(w, "  server start    - 启动 API 服务（go run ./cmd/api）")
	fmt.Fprintln(w, "  worker start    - 启动 Worker 服务（go run ./cmd/worker）")
	fmt.Fprintln(w, "  submit <controller> <tenant_id> <integration_id> [query|@file] - 提交采集任务，返回 job_id")
	fmt.Fprintln(w, "  status <job_id> - 查看任务状态与产物清单")
	fmt.Fprintln(w, "  events <job_id> - 输出任务事件流")
	fmt.Fprintln(w, "  wait <job_id>   - 轮询直到任务结束")
	fmt.Fprintln(w, "  controllers     - 列出已注册的控制器")
}

func runConfig() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if cfg != nil {
		fmt.Printf("api.port=%d\n", cfg.API.Port)
		fmt.Printf("api.host=%s\n", cfg.API.Host)
		fmt.Printf("queue.type=%s\n", cfg.Queue.Type)
		fmt.Printf("jobstore.type=%s\n", cfg.JobStore.Type)
	}
}

func runGo(pkg string) {
	c := exec.Command("go", "run", pkg)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", pkg, err)
		os.Exit(1)
	}
}

func runHealth(stdout, stderr io.Writer) int {
	out, err := checkHealth()
	if err != nil {
		fmt.Fprintf(stderr, "健康检查失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}

// parseSubmitArgs 解析 submit 参数；query 可内联 JSON，也可用 @path 从文件读取
func parseSubmitArgs(args []string) (submitRequest, error) {
	if len(args) < 3 {
		return submitRequest{}, fmt.Errorf("Usage: ingest submit <controller> <tenant_id> <integration_id> [query|@file]")
	}
	req := submitRequest{Controller: args[0], TenantID: args[1], IntegrationID: args[2], Query: json.RawMessage("{}")}
	if len(args) > 3 {
		raw := args[3]
		if strings.HasPrefix(raw, "@") {
			b, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
			if err != nil {
				return submitRequest{}, fmt.Errorf("读取 query 文件: %w", err)
			}
			raw = string(b)
		}
		if !json.Valid([]byte(raw)) {
			return submitRequest{}, fmt.Errorf("query 不是合法的 JSON")
		}
		req.Query = json.RawMessage(raw)
	}
	return req, nil
}

func runSubmit(args []string, stdout, stderr io.Writer) int {
	req, err := parseSubmitArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	id, err := submitJob(req)
	if err != nil {
		fmt.Fprintf(stderr, "提交失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, id)
	return 0
}

func runStatus(jobID string, stdout, stderr io.Writer) int {
	j, err := getJob(jobID)
	if err != nil {
		fmt.Fprintf(stderr, "查询失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(j))
	return 0
}

func runEvents(jobID string, stdout, stderr io.Writer) int {
	ev, err := getJobEvents(jobID)
	if err != nil {
		fmt.Fprintf(stderr, "获取事件流失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(ev))
	return 0
}

// runWait 轮询任务状态，completed 返回 0，failed 或超出轮询次数返回非 0
func runWait(jobID string, interval time.Duration, maxPolls int, stdout, stderr io.Writer) int {
	for i := 0; i < maxPolls; i++ {
		j, err := getJob(jobID)
		if err != nil {
			fmt.Fprintf(stderr, "查询失败: %v\n", err)
			return 1
		}
		status, _ := j["status"].(string)
		attempt, _ := j["attempt"].(float64)
		fmt.Fprintf(stdout, "  status: %s (attempt %d)\n", status, int(attempt))
		switch status {
		case "completed":
			return 0
		case "failed":
			if msg, _ := j["error"].(string); msg != "" {
				fmt.Fprintf(stderr, "任务失败: %s\n", msg)
			}
			return 2
		}
		time.Sleep(interval)
	}
	fmt.Fprintf(stderr, "等待超时: %s\n", jobID)
	return 3
}

func runControllers(stdout, stderr io.Writer) int {
	names, err := listControllers()
	if err != nil {
		fmt.Fprintf(stderr, "列出控制器失败: %v\n", err)
		return 1
	}
	for _, n := range names {
		fmt.Fprintln(stdout, n)
	}
	return 0
}
