// cmd/demo/main.go
//
// Offline play-through with a canned narrator. Everything runs from one
// fixed seed, so two runs of the demo print the same session.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Corphon/SoloRealmMCP/internal/dice"
	"github.com/Corphon/SoloRealmMCP/internal/models"
	"github.com/Corphon/SoloRealmMCP/internal/services"
	"github.com/Corphon/SoloRealmMCP/internal/storage"
	"github.com/Corphon/SoloRealmMCP/internal/storage/auditdb"
)

func main() {
	seed := flag.Int64("seed", 42, "dice seed")
	flag.Parse()

	tmpDir, err := os.MkdirTemp("", "solorealm_demo")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := auditdb.Open(filepath.Join(tmpDir, "audit.db"))
	if err != nil {
		log.Fatalf("open audit db: %v", err)
	}
	defer store.Close()

	files, err := storage.NewFileStorage(tmpDir)
	if err != nil {
		log.Fatalf("file storage: %v", err)
	}

	recorder := auditdb.NewRecorder(store)
	roller := dice.NewRoller(dice.NewSource(*seed))
	roller.SetSink(recorder)

	clocks := services.NewClockService()
	pressure := services.NewPressureService(clocks, roller)
	combat := services.NewCombatService(roller)
	creative := services.NewCreativeService(clocks)
	forge := services.NewForgeService(creative, roller)
	session := services.NewSessionService(
		clocks, pressure, combat, creative, forge,
		files, filepath.Join(tmpDir, "saves"), recorder,
	)

	narrator := &cannedNarrator{}

	fmt.Println("=== SoloRealmMCP demo (seed", *seed, ") ===")

	// Open the session, then seed a two-zone map directly into state.
	batch, err := session.StartSession("demo_session", "")
	if err != nil {
		log.Fatalf("start session: %v", err)
	}
	seedWorld(session.State())
	answer(session, narrator, batch)

	printState(session)

	// Travel east. The day cycle, the arrival forge cascade and the
	// resulting narrator batch all run off this one call.
	travel, err := session.TravelTo("Duskmoor")
	if err != nil {
		log.Fatalf("travel: %v", err)
	}
	fmt.Printf("\n--- Traveled Ashford -> Duskmoor (%d day(s)) ---\n", len(travel.Days))
	answer(session, narrator, travel.Batch)

	printState(session)

	// Pick a fight with an ad-hoc foe group.
	state, err := session.StartEncounterCombat("Bandit",
		"AC=12, HD=1, hp=4/4, AT=+1, Dmg=1d6, ML=7", "2 bandits ambush the road")
	if err != nil {
		log.Fatalf("start combat: %v", err)
	}
	fmt.Printf("\n--- Combat: %d foe(s) ---\n", len(state.FoeSide))

	for round := 1; round <= 20; round++ {
		turn, err := session.CombatAction("attack")
		if err != nil {
			log.Fatalf("combat round %d: %v", round, err)
		}
		if turn.Ended {
			answer(session, narrator, turn.Batch)
			break
		}
	}

	view, err := session.View()
	if err != nil {
		log.Fatalf("view: %v", err)
	}
	fmt.Println("\n--- Session facts ---")
	for _, fact := range view.DailyFacts {
		fmt.Println("  *", fact)
	}

	rolls, err := store.RecentRolls(context.Background(), "demo_session", 1000)
	if err != nil {
		log.Fatalf("audit query: %v", err)
	}
	fmt.Printf("\n%d dice rolls recorded in the audit trail.\n", len(rolls))
}

// seedWorld drops a minimal starting map into the fresh session state.
func seedWorld(state *models.SessionState) {
	state.PCZone = "Ashford"
	state.PC = &models.PCState{
		Name: "Marrin",
		Stats: models.StatBlock{
			AC: 14, HD: 3, HP: 16, HPMax: 16, Attack: 3, Damage: "1d8", Morale: 12,
		},
	}
	state.Zones["Ashford"] = &models.Zone{
		Name:      "Ashford",
		Intensity: models.IntensityLow,
		NoFaction: true,
		CrossingPoints: []models.CrossingPoint{
			{Destination: "Duskmoor", Tag: models.CrossingTagEventful},
		},
	}
	state.Zones["Duskmoor"] = &models.Zone{
		Name:      "Duskmoor",
		Intensity: models.IntensityMedium,
		CrossingPoints: []models.CrossingPoint{
			{Destination: "Ashford"},
		},
	}
	state.EncounterLists["Ashford"] = &models.EncounterList{
		Zone:       "Ashford",
		Randomizer: "1d6",
		Entries: []models.EncounterEntry{
			{Range: "1-3", Prompt: "2 wolves (AC=12, HD=1, hp=4/4, AT=+1, Dmg=1d6, ML=7)"},
			{Range: "4-6", Prompt: "an empty stretch of road"},
		},
	}
	state.EncounterLists["Duskmoor"] = &models.EncounterList{
		Zone:       "Duskmoor",
		Randomizer: "1d6",
		Entries: []models.EncounterEntry{
			{Range: "1-2", Prompt: "1d3 bandits (AC=12, HD=1, hp=4/4, AT=+1, Dmg=1d6, ML=7)"},
			{Range: "3-6", Prompt: "moorland fog, nothing stirs"},
		},
	}
}

// answer feeds every outstanding batch through the canned narrator until
// the queue drains.
func answer(session *services.SessionService, narrator *cannedNarrator, batch *services.RequestBatch) {
	for batch != nil && batch.RequestCount > 0 {
		raw := narrator.Answer(batch)
		if _, err := session.SubmitResponse(raw); err != nil {
			log.Fatalf("submit response: %v", err)
		}
		var err error
		batch, err = session.OutstandingBatch()
		if err != nil {
			return
		}
	}
}

func printState(session *services.SessionService) {
	view, err := session.View()
	if err != nil {
		log.Fatalf("view: %v", err)
	}
	fmt.Printf("\n[%s | %s | %s] phase=%s\n", view.Date, view.Season, view.PCZone, view.Phase)
	for _, clock := range view.Clocks {
		marker := " "
		if clock.Danger {
			marker = "!"
		}
		fmt.Printf("  %s %s: %d/%d (%s)\n", marker, clock.Name, clock.Progress, clock.Max, clock.Status)
	}
}

// cannedNarrator invents deterministic world content for forge requests
// and one-line prose for narration requests.
type cannedNarrator struct {
	npcSeq     int
	clockSeq   int
	factionSeq int
	anchorSeq  int
	zoneSeq    int
}

func (n *cannedNarrator) Answer(batch *services.RequestBatch) string {
	responses := make([]*models.CreativeResponse, 0, len(batch.Requests))
	for _, req := range batch.Requests {
		responses = append(responses, n.answerOne(req))
	}
	out, err := json.Marshal(services.ResponseBatch{BatchID: batch.BatchID, Responses: responses})
	if err != nil {
		log.Fatalf("marshal canned answer: %v", err)
	}
	return string(out)
}

func (n *cannedNarrator) answerOne(req *models.CreativeRequest) *models.CreativeResponse {
	resp := &models.CreativeResponse{ID: req.ID, Type: req.Type}
	zone, _ := req.Context["zone"].(string)

	switch req.Type {
	case models.RequestNPCForge:
		n.npcSeq++
		name := fmt.Sprintf("Forged NPC %d", n.npcSeq)
		resp.Content = name + " takes shape."
		resp.StateChanges = []models.StateChange{{
			Type: models.ChangeNPCCreate,
			Payload: map[string]any{
				"name": name, "zone": zone, "role": "local",
				"ac": 11, "hd": 1, "hp": 4, "attack": 1, "damage": "1d6", "morale": 7,
			},
		}}

	case models.RequestFactionForge:
		n.factionSeq++
		name := fmt.Sprintf("Compact %d", n.factionSeq)
		resp.Content = name + " holds the area."
		resp.StateChanges = []models.StateChange{
			{Type: models.ChangeFactionCreate, Payload: map[string]any{
				"name": name, "disposition": "wary",
			}},
			{Type: models.ChangeZoneUpdate, Payload: map[string]any{
				"name": zone, "controlling_faction": name,
			}},
		}

	case models.RequestClockForge:
		n.clockSeq++
		name := fmt.Sprintf("%s Trouble %d", zone, n.clockSeq)
		resp.Content = "Something builds in " + zone + "."
		resp.StateChanges = []models.StateChange{{
			Type: models.ChangeClockCreate,
			Payload: map[string]any{
				"name": name, "max_progress": 6,
				"advance_bullets": []any{"a day passes without interference"},
			},
		}}

	case models.RequestEngineForge:
		engineName, _ := req.Context["engine_name"].(string)
		resp.Content = "The land moves on its own."
		resp.StateChanges = []models.StateChange{{
			Type: models.ChangeEngineCreate,
			Payload: map[string]any{
				"engine_name": engineName, "zone_scope": zone,
				"randomizer": "1d6", "run_cap_per_day": 1,
			},
		}}

	case models.RequestELForge:
		resp.Content = "Dangers of " + zone + "."
		resp.StateChanges = []models.StateChange{{
			Type: models.ChangeELCreate,
			Payload: map[string]any{
				"zone": zone, "randomizer": "1d6",
				"entries": []any{
					map[string]any{"range": "1-2", "prompt": "2 brigands (AC=12, HD=1, hp=4/4, AT=+1, Dmg=1d6, ML=7)"},
					map[string]any{"range": "3-6", "prompt": "nothing but wind"},
				},
			},
		}}

	case models.RequestAnchorForge:
		n.anchorSeq++
		id := fmt.Sprintf("UA-%02d", n.anchorSeq)
		resp.Content = "A rumor surfaces."
		resp.StateChanges = []models.StateChange{
			{Type: models.ChangeUACreate, Payload: map[string]any{
				"ua_id": id, "zone": zone, "description": "a sealed barrow on the ridge",
			}},
			{Type: models.ChangeDiscoveryCreate, Payload: map[string]any{
				"zone": zone, "anchor_code": id, "source": "tavern talk",
				"info": "locals avoid the ridge after dark",
			}},
		}

	case models.RequestZoneExpansion:
		parent, _ := req.Context["parent_zone"].(string)
		count := 1
		if f, ok := req.Context["cp_count"].(int); ok {
			count = f
		} else if f, ok := req.Context["cp_count"].(float64); ok {
			count = int(f)
		}
		resp.Content = "The map grows."
		for i := 0; i < count; i++ {
			n.zoneSeq++
			name := fmt.Sprintf("Reach %d", n.zoneSeq)
			resp.StateChanges = append(resp.StateChanges,
				models.StateChange{Type: models.ChangeZoneCreate, Payload: map[string]any{
					"name": name,
					"crossing_points": []any{
						map[string]any{"destination": parent},
					},
				}},
				models.StateChange{Type: models.ChangeZoneUpdate, Payload: map[string]any{
					"name": parent,
					"add_crossing_points": []any{
						map[string]any{"destination": name},
					},
				}},
			)
		}

	default:
		resp.Content = "The narrator nods and the story moves on."
	}
	return resp
}
