package push

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/arrosemoi-app/server/internal/database"
	"github.com/arrosemoi-app/server/internal/model"
	"github.com/arrosemoi-app/server/internal/store"
)

type sentPush struct {
	endpoint string
	payload  Payload
}

// fakeSender records deliveries and fails selected endpoints.
type fakeSender struct {
	mu     sync.Mutex
	sent   []sentPush
	errFor map[string]error
}

func (f *fakeSender) Send(sub *model.PushSubscription, payload Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errFor[sub.Endpoint]; ok {
		return err
	}
	f.sent = append(f.sent, sentPush{endpoint: sub.Endpoint, payload: payload})
	return nil
}

func (f *fakeSender) sentTo() []sentPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPush(nil), f.sent...)
}

type schedulerFixture struct {
	sender *fakeSender
	sched  *Scheduler
	users  *store.UserStore
	plants *store.PlantStore
	houses *store.HouseStore
	push   *store.PushStore
}

func setupScheduler(t *testing.T) *schedulerFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sender := &fakeSender{errFor: make(map[string]error)}
	pushStore := store.NewPushStore(db)
	plantStore := store.NewPlantStore(db)

	return &schedulerFixture{
		sender: sender,
		sched:  NewScheduler(sender, pushStore, plantStore, DefaultNotifyHour, slog.Default()),
		users:  store.NewUserStore(db),
		plants: plantStore,
		houses: store.NewHouseStore(db),
		push:   pushStore,
	}
}

func (f *schedulerFixture) user(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := f.users.Create(email, "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *schedulerFixture) subscribe(t *testing.T, userID int64, endpoint string) *model.PushSubscription {
	t.Helper()
	sub, err := f.push.Subscribe(userID, endpoint, "p256dh", "auth")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return sub
}

// overduePlant creates a plant whose watering is past due at notifyTime.
func (f *schedulerFixture) overduePlant(t *testing.T, userID int64, name string, at time.Time) *model.Plant {
	t.Helper()
	last := at.AddDate(0, 0, -8)
	p, err := f.plants.Create(&model.Plant{
		UserID:      userID,
		Name:        name,
		Frequency:   7,
		LastWatered: &last,
	})
	if err != nil {
		t.Fatalf("create plant: %v", err)
	}
	return p
}

// notifyTime is a wall-clock moment inside the send window.
var notifyTime = time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC)

func TestScanOutsideNotifyHour(t *testing.T) {
	f := setupScheduler(t)
	u := f.user(t, "alice@example.com")
	f.overduePlant(t, u.ID, "Monstera", notifyTime)
	f.subscribe(t, u.ID, "https://push.example.com/a")

	f.sched.Scan(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	if got := f.sender.sentTo(); len(got) != 0 {
		t.Fatalf("expected no sends outside the notify hour, got %d", len(got))
	}
}

func TestScanSendsDigestOncePerDay(t *testing.T) {
	f := setupScheduler(t)
	u := f.user(t, "alice@example.com")
	f.overduePlant(t, u.ID, "Monstera", notifyTime)
	f.overduePlant(t, u.ID, "Pothos", notifyTime)
	f.subscribe(t, u.ID, "https://push.example.com/a")

	f.sched.Scan(notifyTime)

	got := f.sender.sentTo()
	if len(got) != 1 {
		t.Fatalf("expected 1 send, got %d", len(got))
	}
	p := got[0].payload
	if p.Title != "2 plante(s) ont besoin de toi" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Body != "2 à arroser" {
		t.Errorf("body = %q", p.Body)
	}
	if p.Tag != DigestTag {
		t.Errorf("tag = %q, want %q", p.Tag, DigestTag)
	}
	if p.URL != "/reminders" {
		t.Errorf("url = %q", p.URL)
	}

	// A later tick inside the same window must not resend.
	f.sched.Scan(notifyTime.Add(30 * time.Minute))
	if got := f.sender.sentTo(); len(got) != 1 {
		t.Fatalf("expected no resend within the day, got %d sends", len(got))
	}

	// Next morning the subscription is a candidate again.
	f.sched.Scan(notifyTime.AddDate(0, 0, 1))
	if got := f.sender.sentTo(); len(got) != 2 {
		t.Fatalf("expected a send on the next day, got %d total", len(got))
	}
}

func TestScanCombinesCareTypes(t *testing.T) {
	f := setupScheduler(t)
	u := f.user(t, "alice@example.com")

	lastWatered := notifyTime.AddDate(0, 0, -8)
	lastRepotted := notifyTime.AddDate(0, -13, 0)
	lastFertilized := notifyTime.AddDate(0, 0, -35)
	repotMonths := 12
	fertilizeWeeks := 4
	_, err := f.plants.Create(&model.Plant{
		UserID:              u.ID,
		Name:                "Ficus",
		Frequency:           7,
		LastWatered:         &lastWatered,
		RepottingFrequency:  &repotMonths,
		LastRepotted:        &lastRepotted,
		FertilizerFrequency: &fertilizeWeeks,
		LastFertilized:      &lastFertilized,
	})
	if err != nil {
		t.Fatalf("create plant: %v", err)
	}
	f.subscribe(t, u.ID, "https://push.example.com/a")

	f.sched.Scan(notifyTime)

	got := f.sender.sentTo()
	if len(got) != 1 {
		t.Fatalf("expected 1 send, got %d", len(got))
	}
	p := got[0].payload
	if p.Title != "3 plante(s) ont besoin de toi" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Body != "1 à arroser • 1 à rempoter • 1 à fertiliser" {
		t.Errorf("body = %q", p.Body)
	}
}

func TestScanSkipsUsersWithNothingDue(t *testing.T) {
	f := setupScheduler(t)
	u := f.user(t, "alice@example.com")

	last := notifyTime.AddDate(0, 0, -2)
	if _, err := f.plants.Create(&model.Plant{
		UserID:      u.ID,
		Name:        "Cactus",
		Frequency:   30,
		LastWatered: &last,
	}); err != nil {
		t.Fatalf("create plant: %v", err)
	}
	f.subscribe(t, u.ID, "https://push.example.com/a")

	f.sched.Scan(notifyTime)

	if got := f.sender.sentTo(); len(got) != 0 {
		t.Fatalf("expected no sends, got %d", len(got))
	}

	// Nothing sent means nothing marked: still a candidate for later.
	candidates, err := f.push.ListDigestCandidates(notifyTime.Format("2006-01-02"))
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected subscription to remain a candidate, got %d", len(candidates))
	}
}

func TestScanNeverWateredPlantIsDue(t *testing.T) {
	f := setupScheduler(t)
	u := f.user(t, "alice@example.com")

	if _, err := f.plants.Create(&model.Plant{
		UserID:    u.ID,
		Name:      "Nouvelle",
		Frequency: 7,
	}); err != nil {
		t.Fatalf("create plant: %v", err)
	}
	f.subscribe(t, u.ID, "https://push.example.com/a")

	f.sched.Scan(notifyTime)

	got := f.sender.sentTo()
	if len(got) != 1 {
		t.Fatalf("expected 1 send, got %d", len(got))
	}
	if got[0].payload.Body != "1 à arroser" {
		t.Errorf("body = %q", got[0].payload.Body)
	}
}

func TestScanRemovesExpiredSubscription(t *testing.T) {
	f := setupScheduler(t)
	u := f.user(t, "alice@example.com")
	f.overduePlant(t, u.ID, "Monstera", notifyTime)

	dead := f.subscribe(t, u.ID, "https://push.example.com/dead")
	alive := f.subscribe(t, u.ID, "https://push.example.com/alive")
	f.sender.errFor[dead.Endpoint] = ErrExpired

	f.sched.Scan(notifyTime)

	subs, err := f.push.ListByUser(u.ID)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 remaining subscription, got %d", len(subs))
	}
	if subs[0].Endpoint != alive.Endpoint {
		t.Errorf("surviving endpoint = %q, want %q", subs[0].Endpoint, alive.Endpoint)
	}
	if subs[0].LastNotified != notifyTime.Format("2006-01-02") {
		t.Errorf("last_notified = %q, want today", subs[0].LastNotified)
	}
}

func TestScanTransientFailureKeepsSubscription(t *testing.T) {
	f := setupScheduler(t)
	u := f.user(t, "alice@example.com")
	f.overduePlant(t, u.ID, "Monstera", notifyTime)

	sub := f.subscribe(t, u.ID, "https://push.example.com/flaky")
	f.sender.errFor[sub.Endpoint] = errors.New("503 from push service")

	f.sched.Scan(notifyTime)

	subs, err := f.push.ListByUser(u.ID)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected subscription to survive, got %d", len(subs))
	}
	if subs[0].LastNotified != "" {
		t.Errorf("last_notified = %q, want empty after failed send", subs[0].LastNotified)
	}
}

func TestMidnightNotifyHour(t *testing.T) {
	f := setupScheduler(t)
	f.sched = NewScheduler(f.sender, f.push, f.plants, 0, slog.Default())

	u := f.user(t, "alice@example.com")
	f.overduePlant(t, u.ID, "Monstera", notifyTime)
	f.subscribe(t, u.ID, "https://push.example.com/a")

	// Hour 0 is a real window, not "unset": the 08:00 default must not
	// apply.
	f.sched.Scan(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	if got := f.sender.sentTo(); len(got) != 0 {
		t.Fatalf("expected no sends at 08:00 with a midnight window, got %d", len(got))
	}

	f.sched.Scan(time.Date(2026, 3, 10, 0, 15, 0, 0, time.UTC))
	if got := f.sender.sentTo(); len(got) != 1 {
		t.Fatalf("expected 1 send at midnight, got %d", len(got))
	}
}

func TestScanIncludesHousePlants(t *testing.T) {
	f := setupScheduler(t)
	owner := f.user(t, "alice@example.com")
	member := f.user(t, "bob@example.com")

	house, err := f.houses.Create("Salon", owner.ID)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}
	if _, err := f.houses.AddMember(house.ID, member.ID, model.RoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}

	last := notifyTime.AddDate(0, 0, -8)
	if _, err := f.plants.Create(&model.Plant{
		UserID:      owner.ID,
		HouseID:     &house.ID,
		Name:        "Yucca",
		Frequency:   7,
		LastWatered: &last,
	}); err != nil {
		t.Fatalf("create plant: %v", err)
	}

	f.subscribe(t, member.ID, "https://push.example.com/bob")

	f.sched.Scan(notifyTime)

	got := f.sender.sentTo()
	if len(got) != 1 {
		t.Fatalf("expected the house member to get a digest, got %d sends", len(got))
	}
	if got[0].payload.Body != "1 à arroser" {
		t.Errorf("body = %q", got[0].payload.Body)
	}
}

func TestScanUnionsAcrossHouses(t *testing.T) {
	f := setupScheduler(t)
	alice := f.user(t, "alice@example.com")
	bob := f.user(t, "bob@example.com")
	carol := f.user(t, "carol@example.com")

	// Carol belongs to two houses, each with one overdue plant owned by
	// someone else.
	salon, err := f.houses.Create("Salon", alice.ID)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}
	bureau, err := f.houses.Create("Bureau", bob.ID)
	if err != nil {
		t.Fatalf("create house: %v", err)
	}
	if _, err := f.houses.AddMember(salon.ID, carol.ID, model.RoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := f.houses.AddMember(bureau.ID, carol.ID, model.RoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}

	last := notifyTime.AddDate(0, 0, -8)
	for _, p := range []model.Plant{
		{UserID: alice.ID, HouseID: &salon.ID, Name: "Yucca", Frequency: 7, LastWatered: &last},
		{UserID: bob.ID, HouseID: &bureau.ID, Name: "Ficus", Frequency: 7, LastWatered: &last},
	} {
		if _, err := f.plants.Create(&p); err != nil {
			t.Fatalf("create plant: %v", err)
		}
	}

	f.subscribe(t, carol.ID, "https://push.example.com/carol")

	f.sched.Scan(notifyTime)

	got := f.sender.sentTo()
	if len(got) != 1 {
		t.Fatalf("expected 1 digest, got %d sends", len(got))
	}
	p := got[0].payload
	if p.Title != "2 plante(s) ont besoin de toi" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Body != "2 à arroser" {
		t.Errorf("body = %q, want both houses counted", p.Body)
	}
}
