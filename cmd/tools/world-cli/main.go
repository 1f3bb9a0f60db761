package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelight/internal/auth"
	"github.com/annel0/voxelight/internal/config"
	"github.com/annel0/voxelight/internal/engine"
	"github.com/annel0/voxelight/internal/logging"
	"github.com/annel0/voxelight/internal/storage"
	"github.com/annel0/voxelight/internal/terrain"
	"github.com/annel0/voxelight/internal/world"
	"github.com/annel0/voxelight/internal/world/block"
)

func main() {
	var (
		command    = flag.String("cmd", "light", "Command: gen, light, raycast, hash, token, secret")
		configPath = flag.String("config", "", "YAML config (default: VOXEL_CONFIG or built-in defaults)")
		out        = flag.String("out", "", "gen: output file (default: storage.world_file)")
		origin     = flag.String("origin", "8.5,40,8.5", "raycast: ray origin x,y,z")
		dir        = flag.String("dir", "0,-1,0", "raycast: ray direction x,y,z")
		reach      = flag.Float64("reach", 64, "raycast: max distance")
		password   = flag.String("password", "", "hash: password to hash")
		name       = flag.String("name", "", "token: operator name")
		admin      = flag.Bool("admin", false, "token: issue an admin token")
		ttl        = flag.Duration("ttl", time.Hour, "token: lifetime")
	)
	flag.Parse()

	// Утилита пишет результат в stdout, логи движка только мешают
	logging.SetLevel(logging.WARN)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}

	switch *command {
	case "gen":
		err = generate(cfg, *out)
	case "light":
		err = lightReport(cfg)
	case "raycast":
		err = raycast(cfg, *origin, *dir, float32(*reach))
	case "hash":
		err = hashPassword(*password)
	case "token":
		err = issueToken(cfg, *name, *admin, *ttl)
	case "secret":
		err = printSecret()
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

// buildWorld строит мир по конфигурации без шины и хранилища
func buildWorld(cfg *config.Config) (*engine.Engine, error) {
	catalog := block.DefaultCatalog()
	if cfg.BlocksFile != "" {
		var err error
		if catalog, err = block.LoadCatalogYAML(cfg.BlocksFile); err != nil {
			return nil, err
		}
	}

	source, err := terrain.New(terrain.Options{
		Kind:      terrain.Kind(cfg.World.Terrain.Kind),
		Seed:      cfg.World.Terrain.Seed,
		Ground:    cfg.World.Terrain.Ground,
		Amplitude: cfg.World.Terrain.Amplitude,
	})
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Options{
		Name:    cfg.World.Name,
		Width:   cfg.World.Width,
		Height:  cfg.World.Height,
		Depth:   cfg.World.Depth,
		Source:  source,
		Catalog: catalog,
	})
}

func generate(cfg *config.Config, out string) error {
	start := time.Now()
	eng, err := buildWorld(cfg)
	if err != nil {
		return err
	}

	if out == "" {
		out = cfg.Storage.WorldFile
	}
	fs := storage.NewFileStore(cfg.Storage.DataDir)
	if err := eng.SaveFile(fs, out); err != nil {
		return err
	}

	info := eng.Info()
	fmt.Printf("🌍 World %s: %dx%dx%d chunks (%d voxels) in %s\n",
		info.Name, info.Chunks.X, info.Chunks.Y, info.Chunks.Z,
		info.Size.X*info.Size.Y*info.Size.Z, time.Since(start).Round(time.Millisecond))
	fmt.Printf("💾 Written to %s\n", fs.Path(out))
	return nil
}

// Histogram - число ячеек воздуха по уровням света
type Histogram struct {
	Sun   [world.MaxLight + 1]int
	Color [world.MaxLight + 1]int // max(R, G, B)
	Air   int
}

// collectHistogram обходит все ячейки мира
func collectHistogram(eng *engine.Engine) Histogram {
	var h Histogram
	size := eng.Info().Size
	for y := 0; y < size.Y; y++ {
		for z := 0; z < size.Z; z++ {
			for x := 0; x < size.X; x++ {
				id, _ := eng.Voxel(x, y, z)
				if id != block.AirBlockID {
					continue
				}
				sample, _ := eng.Light(x, y, z)
				h.Air++
				h.Sun[sample.Sun]++
				h.Color[max(sample.R, sample.G, sample.B)]++
			}
		}
	}
	return h
}

func lightReport(cfg *config.Config) error {
	eng, err := buildWorld(cfg)
	if err != nil {
		return err
	}

	h := collectHistogram(eng)
	fmt.Printf("💡 Light levels over %d air cells\n", h.Air)
	fmt.Printf("%5s %10s %10s\n", "level", "sun", "rgb")
	for level := world.MaxLight; level >= 0; level-- {
		if h.Sun[level] == 0 && h.Color[level] == 0 {
			continue
		}
		fmt.Printf("%5d %10d %10d\n", level, h.Sun[level], h.Color[level])
	}
	return nil
}

func raycast(cfg *config.Config, originArg, dirArg string, reach float32) error {
	o, err := parseVec3(originArg)
	if err != nil {
		return fmt.Errorf("origin: %w", err)
	}
	d, err := parseVec3(dirArg)
	if err != nil {
		return fmt.Errorf("dir: %w", err)
	}

	eng, err := buildWorld(cfg)
	if err != nil {
		return err
	}

	hit, found := eng.Pick(o, d, reach)
	if !found {
		fmt.Printf("🎯 Miss: stopped at (%d, %d, %d), end %.2f,%.2f,%.2f\n", hit.Pos.X, hit.Pos.Y, hit.Pos.Z, hit.End[0], hit.End[1], hit.End[2])
		return nil
	}

	def, _ := eng.Catalog().Get(hit.Voxel.ID)
	fmt.Printf("🎯 Hit %s (%d) at (%d, %d, %d)\n", def.Name, hit.Voxel.ID, hit.Pos.X, hit.Pos.Y, hit.Pos.Z)
	fmt.Printf("   point  %.3f, %.3f, %.3f\n", hit.End[0], hit.End[1], hit.End[2])
	fmt.Printf("   normal %.0f, %.0f, %.0f\n", hit.Normal[0], hit.Normal[1], hit.Normal[2])

	above := hit.Pos
	above.X += int(hit.Normal[0])
	above.Y += int(hit.Normal[1])
	above.Z += int(hit.Normal[2])
	if sample, ok := eng.Light(above.X, above.Y, above.Z); ok {
		fmt.Printf("   light on face R=%d G=%d B=%d Sun=%d\n", sample.R, sample.G, sample.B, sample.Sun)
	}
	return nil
}

// parseVec3 разбирает строку "x,y,z"
func parseVec3(s string) (mgl32.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl32.Vec3{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v mgl32.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return mgl32.Vec3{}, fmt.Errorf("component %d: %w", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func hashPassword(password string) error {
	if password == "" {
		return fmt.Errorf("-password is required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func issueToken(cfg *config.Config, name string, admin bool, ttl time.Duration) error {
	if name == "" {
		return fmt.Errorf("-name is required")
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is not set: a token signed with a random secret is useless")
	}

	tokens, err := auth.NewTokenManager(cfg.Server.JWTSecret, ttl)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(&auth.Operator{Name: name, IsAdmin: admin})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func printSecret() error {
	secret, err := auth.GenerateSecureSecret()
	if err != nil {
		return err
	}
	fmt.Println(secret)
	return nil
}
