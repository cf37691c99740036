package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/config"
	"github.com/BaSui01/healthgraph/ingest"
	"github.com/BaSui01/healthgraph/internal/metrics"
	"github.com/BaSui01/healthgraph/types"
)

// =============================================================================
// 🛠️ 运维命令：ingest / delete / ask / index
// =============================================================================

// cliEnv 运维命令的公共环境。日志固定写到 stderr，stdout 只输出结果。
type cliEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app
}

func openCLI(ctx context.Context, configPath string) (*cliEnv, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	logCfg.OutputPaths = []string{"stderr"}
	logger := initLogger(logCfg)

	a, err := newApp(ctx, cfg, metrics.NewCollector("healthgraph", logger), logger)
	if err != nil {
		return nil, err
	}
	return &cliEnv{cfg: cfg, logger: logger, app: a}, nil
}

func (e *cliEnv) close() {
	if err := e.app.close(context.Background()); err != nil {
		e.logger.Warn("close failed", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func runIngest(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.Int64("user", 0, "User id")
	username := fs.String("username", "", "Display name")
	dir := fs.String("dir", "", "Directory with dataset tables")
	index := fs.Bool("index", false, "Embed new nodes after writing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 || strings.TrimSpace(*username) == "" {
		return errors.New("--user and --username are required")
	}

	data, err := loadDatasets(*dir, fs.Args())
	if err != nil {
		return err
	}

	env, err := openCLI(ctx, *configPath)
	if err != nil {
		return err
	}
	defer env.close()

	env.logger.Info("ingesting datasets",
		zap.Int64("user_id", *userID),
		zap.Strings("datasets", datasetKeys(data)),
	)
	summary, err := env.app.writer.Ingest(ctx, ingest.User{ID: *userID, Username: *username}, data)
	if err != nil {
		return err
	}

	ok, err := env.app.withChatStore(ctx)
	if err != nil {
		env.logger.Warn("chat store unavailable, user not synced", zap.Error(err))
	} else if ok {
		if _, err := env.app.chats.EnsureUser(ctx, *userID, *username); err != nil {
			env.logger.Warn("sync chat user failed", zap.Error(err))
		}
	}

	result := map[string]any{"summary": summary}
	if *index {
		if err := env.app.withIndexer(); err != nil {
			return err
		}
		report, err := env.app.indexer.Build(ctx)
		if err != nil {
			return fmt.Errorf("build vector index: %w", err)
		}
		result["index"] = report
	}
	return writeJSON(stdout, result)
}

// loadDatasets 读取目录中与已知数据集同名的表，以及显式列出的文件。
// 目录中无法识别的文件跳过；显式文件交给写入器校验。
func loadDatasets(dir string, files []string) (ingest.Datasets, error) {
	paths := make(map[string]string)
	add := func(path string) error {
		key := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if prev, dup := paths[key]; dup {
			return fmt.Errorf("dataset %q given twice: %s and %s", key, prev, path)
		}
		paths[key] = path
		return nil
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read dataset dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if _, err := ingest.FormatFromPath(name); err != nil {
				continue
			}
			if _, ok := types.KindForDataset(strings.TrimSuffix(name, filepath.Ext(name))); !ok {
				continue
			}
			if err := add(filepath.Join(dir, name)); err != nil {
				return nil, err
			}
		}
	}
	for _, f := range files {
		if err := add(f); err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		return nil, errors.New("no dataset tables given")
	}

	data := make(ingest.Datasets, len(paths))
	for key, path := range paths {
		table, err := readTable(path)
		if err != nil {
			return nil, err
		}
		data[key] = table
	}
	return data, nil
}

func readTable(path string) (ingest.Table, error) {
	format, err := ingest.FormatFromPath(path)
	if err != nil {
		return ingest.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return ingest.Table{}, err
	}
	defer f.Close()

	table, err := ingest.LoadTable(f, format)
	if err != nil {
		return ingest.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

func runDelete(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.Int64("user", 0, "User id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("--user is required")
	}

	env, err := openCLI(ctx, *configPath)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.app.writer.Delete(ctx, *userID); err != nil {
		return err
	}
	ok, err := env.app.withChatStore(ctx)
	if err != nil {
		return err
	}
	if ok {
		if err := env.app.chats.DeleteUser(ctx, *userID); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "deleted user %d\n", *userID)
	return nil
}

func runAsk(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	userID := fs.Int64("user", 0, "User id")
	sessionID := fs.Int64("session", 0, "Chat session whose history is used for follow-ups")
	answer := fs.Bool("answer", false, "Summarize the evidence with the LLM")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if *userID <= 0 || question == "" {
		return errors.New("--user and a question are required")
	}

	env, err := openCLI(ctx, *configPath)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.app.withRetrieval(); err != nil {
		return err
	}

	var history []types.Message
	if *sessionID > 0 {
		ok, err := env.app.withChatStore(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("--session needs a configured database")
		}
		history, err = env.app.chats.History(ctx, *sessionID, env.cfg.Retrieval.HistoryMessages)
		if err != nil {
			return err
		}
	}

	if !*answer {
		evidence, err := env.app.retriever.AnswerEvidence(ctx, question, *userID, history)
		if err != nil {
			return err
		}
		return writeJSON(stdout, evidence)
	}

	result, err := env.app.answerer.Answer(ctx, question, *userID, history)
	if err != nil {
		return err
	}
	if *sessionID > 0 {
		if err := env.app.chats.AppendTurn(ctx, *sessionID, question, result.Answer); err != nil {
			env.logger.Warn("append chat turn failed", zap.Error(err))
		}
	}
	return writeJSON(stdout, result)
}

func runIndex(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := openCLI(ctx, *configPath)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.app.withIndexer(); err != nil {
		return err
	}
	report, err := env.app.indexer.Build(ctx)
	if err != nil {
		return err
	}
	return writeJSON(stdout, report)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// datasetKeys 返回排好序的数据集键
func datasetKeys(data ingest.Datasets) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
