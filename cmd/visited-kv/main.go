// 已访问列表运维 CLI：以独立标签页身份接入配置的存储，每次修改后已打开的视图随之刷新
package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"city-atlas/internal/catalog"
	"city-atlas/internal/config"
	"city-atlas/internal/logger"
	"city-atlas/internal/migrate"
	"city-atlas/internal/notify"
	"city-atlas/internal/storage"
	"city-atlas/internal/utils"
	"city-atlas/internal/visited"
)

type cli struct {
	store   *visited.Store
	sync    *notify.Sync
	records *catalog.Store
}

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  get")
	fmt.Println("  toggle <id>")
	fmt.Println("  mark <id> [id...]")
	fmt.Println("  unmark <id> [id...]")
	fmt.Println("  clear")
	fmt.Println("  watch")
	fmt.Println("  help")
	fmt.Println("  exit")
}

func main() {
	var envFile string
	var args []string
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "--env" && i+1 < len(os.Args) {
			envFile = os.Args[i+1]
			i++
		} else {
			args = append(args, os.Args[i])
		}
	}
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		config.LoadDotenv()
	}
	l := logger.Setup()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openStorage(ctx, cfg)
	if err != nil {
		fmt.Println("storage error:", err)
		os.Exit(1)
	}
	defer backend.Close()

	writer := "cli-" + uuid.NewString()[:8]
	area := storage.NewArea(backend, writer)
	s, err := notify.NewSync(ctx, notify.NewBus(), area, cfg.VisitedKey)
	if err != nil {
		fmt.Println("subscribe error:", err)
		os.Exit(1)
	}
	defer s.Close()
	c := &cli{store: visited.NewStore(area, s, cfg.VisitedKey), sync: s}
	if cities, err := catalog.LoadFile(cfg.CitiesPath); err == nil {
		c.records = catalog.NewStore(cities)
	} else {
		l.Debug("cities_unavailable", "path", cfg.CitiesPath, "err", err)
	}

	if len(args) > 0 {
		if !c.run(ctx, args) {
			os.Exit(1)
		}
		return
	}
	fmt.Println("visited kv cli ready, key", cfg.VisitedKey)
	printHelp()
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		parts := strings.Fields(in.Text())
		if len(parts) == 0 {
			continue
		}
		switch strings.ToLower(parts[0]) {
		case "exit", "quit":
			return
		}
		c.run(ctx, parts)
	}
}

// 执行单条命令，返回是否成功
func (c *cli) run(ctx context.Context, parts []string) bool {
	cmd := strings.ToLower(parts[0])
	switch cmd {
	case "help":
		printHelp()
	case "get", "list":
		c.print(c.store.Load(ctx))
	case "toggle":
		if len(parts) != 2 {
			fmt.Println("usage: toggle <id>")
			return false
		}
		now, err := c.store.Toggle(ctx, catalog.ParseID(parts[1]))
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println(parts[1], "visited:", now)
	case "mark", "unmark":
		if len(parts) < 2 {
			fmt.Printf("usage: %s <id> [id...]\n", cmd)
			return false
		}
		ids := make([]catalog.ID, 0, len(parts)-1)
		for _, p := range parts[1:] {
			ids = append(ids, catalog.ParseID(p))
		}
		if err := c.store.SetMany(ctx, ids, cmd == "mark"); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("ok")
	case "clear":
		if err := c.store.Clear(ctx); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("ok")
	case "watch":
		c.watch(ctx)
	default:
		fmt.Println("unknown command")
		return false
	}
	return true
}

// 持续打印其他标签页造成的变更，直到中断
func (c *cli) watch(ctx context.Context) {
	changed := make(chan struct{}, 1)
	tok := c.sync.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer c.sync.Unsubscribe(tok)
	fmt.Println("watching, ctrl-c to stop")
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			c.print(c.store.Load(ctx))
		}
	}
}

func (c *cli) print(set visited.Set) {
	fmt.Printf("%d visited\n", set.Len())
	for _, id := range set.IDs() {
		name := "?"
		if c.records != nil {
			if city, err := c.records.ByID(id); err == nil {
				name = city.Name
			}
		}
		fmt.Printf("  %s  %s\n", id, name)
	}
}

// 文档注释：按服务相同的规则选择存储驱动
// 约束：memory 驱动仅存在于单个进程内，无法与服务共享，直接拒绝
func openStorage(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	sc := storage.Config{
		Driver:       storage.Driver(cfg.StorageDriver),
		SQLitePath:   cfg.SQLitePath,
		PollInterval: cfg.SQLitePoll,
	}
	switch sc.Driver {
	case storage.DriverMemory:
		return nil, fmt.Errorf("driver %q is private to one process", sc.Driver)
	case storage.DriverRedis:
		sc.Redis = utils.OpenRedisFromEnv()
	case storage.DriverPostgres:
		var db *sql.DB
		var err error
		db, sc.PostgresDSN, err = utils.OpenPostgresFromEnv()
		if err != nil {
			return nil, err
		}
		if err := migrate.EnsureSchema(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		sc.Postgres = db
	}
	return storage.Open(ctx, sc)
}
