package main

import (
	"context"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shinyyama/denifinder/internal/config"
	"github.com/shinyyama/denifinder/internal/db"
	"github.com/shinyyama/denifinder/internal/gateway"
	"github.com/shinyyama/denifinder/internal/logging"
	"github.com/shinyyama/denifinder/internal/model"
	"github.com/shinyyama/denifinder/internal/repository"
	"github.com/shinyyama/denifinder/internal/service"
	jww "github.com/spf13/jwalterweatherman"
)

var seedUsers = []model.Profile{
	{ID: "demo-tenant", DisplayName: "Mary Smith", AvatarURL: "images/deniF.png", Email: "mary@example.com"},
	{ID: "demo-landlord", DisplayName: "John Doe", AvatarURL: "images/deniM.png", Email: "john@example.com"},
	{ID: "demo-agent", DisplayName: "Aiko Tanaka", Email: "aiko@example.com"},
}

var seedProperties = []model.Property{
	{ID: "prop-shibuya-1ldk", Title: "Bright 1LDK near Shibuya", Location: "Shibuya, Tokyo", OwnerID: "demo-landlord", Price: 185000,
		Images: []string{"images/properties/shibuya-1.jpg"}},
	{ID: "prop-nakameguro-studio", Title: "Quiet studio by the river", Location: "Nakameguro, Tokyo", OwnerID: "demo-landlord", Price: 112000},
	{ID: "prop-kichijoji-2ldk", Title: "Family 2LDK next to the park", Location: "Kichijoji, Tokyo", OwnerID: "demo-agent", Price: 230000,
		Images: []string{"images/properties/kichijoji-1.jpg"}},
}

func main() {
	if err := run(); err != nil {
		jww.FATAL.Fatalf("seed failed: %+v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logging.Setup(cfg.LogLevel)
	if cfg.Backend == config.BackendMemory {
		jww.WARN.Printf("seeding the in-memory gateway has no lasting effect; set GATEWAY_BACKEND")
	}

	app, err := db.NewFirebaseApp(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := db.OpenStore(ctx, cfg, app)
	if err != nil {
		return errors.Wrap(err, "open gateway")
	}
	defer store.Close()

	canSeed, err := shouldSeed(ctx, store)
	if err != nil {
		return err
	}
	if !canSeed {
		jww.INFO.Printf("users already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}
	setter, ok := store.(gateway.Setter)
	if !ok {
		return errors.Errorf("%s gateway cannot write documents by id", cfg.Backend)
	}

	for _, u := range seedUsers {
		if err := setter.Set(ctx, repository.CollectionUsers, u.ID, u.Record()); err != nil {
			return err
		}
	}
	for _, p := range seedProperties {
		if err := setter.Set(ctx, repository.CollectionProperties, p.ID, p.Record()); err != nil {
			return err
		}
	}

	convs := repository.NewConversationRepository(store)
	dir := service.NewConversationDirectory(convs, repository.NewUserRepository(store), repository.NewPropertyRepository(store), nil)
	stream := service.NewMessageStream(repository.NewMessageRepository(store), convs)

	cv, err := dir.FindOrCreate(ctx, "demo-tenant", "demo-landlord", service.FindOrCreateOptions{PropertyID: "prop-shibuya-1ldk"})
	if err != nil {
		return err
	}
	script := []struct {
		from, to string
		body     model.Body
	}{
		{"demo-tenant", "demo-landlord", model.TextBody{Text: "Hi! Is the Shibuya apartment still available?"}},
		{"demo-landlord", "demo-tenant", model.TextBody{Text: "It is. Viewings are possible this weekend."}},
		{"demo-landlord", "demo-tenant", model.NewPropertyShare("prop-nakameguro-studio")},
		{"demo-tenant", "demo-landlord", model.TextBody{Text: "Saturday morning works for me."}},
	}
	for _, line := range script {
		if _, err := stream.Send(ctx, cv.ID, line.from, line.to, line.body); err != nil {
			return err
		}
	}

	jww.INFO.Printf("seeded %d users, %d properties and conversation %s", len(seedUsers), len(seedProperties), cv.ID)
	return nil
}

func shouldSeed(ctx context.Context, store gateway.Store) (bool, error) {
	if strings.EqualFold(os.Getenv("FORCE_SEED"), "true") {
		return true, nil
	}
	docs, err := store.Query(ctx, repository.CollectionUsers, gateway.Query{}.Take(1))
	if err != nil {
		return false, errors.WithMessage(err, "check existing users")
	}
	return len(docs) == 0, nil
}
