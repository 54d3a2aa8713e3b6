package storyboard

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

// EventType classifies a store change notification.
type EventType string

const (
	EventPlanReplaced EventType = "plan_replaced"
	EventSceneUpdated EventType = "scene_updated"
)

// Event is a store change notification pushed to subscribers.
type Event struct {
	Type    EventType `json:"type"`
	Epoch   int64     `json:"epoch"`
	SceneID string    `json:"scene_id,omitempty"`
}

// Store holds the current storyboard in memory. A single mutex guards
// the ordered scene list; every read hands out deep copies so callers
// never observe a partially written scene.
//
// Epoch increments on each ReplaceAll. Writes carrying a stale epoch or
// a stale scene revision are silently discarded, which is what makes
// bulk replacement safe while materializations are in flight.
type Store struct {
	mu     sync.Mutex
	scenes []*Scene
	epoch  int64

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]chan Event)}
}

// ReplaceAll discards the current storyboard and installs loading
// placeholders for the given specs. Returns the new epoch.
func (s *Store) ReplaceAll(specs []SceneSpec) int64 {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.scenes = make([]*Scene, 0, len(specs))
	for _, spec := range specs {
		s.scenes = append(s.scenes, &Scene{
			ID:          uuid.NewString(),
			Epoch:       epoch,
			SceneSpec:   spec,
			IsLoading:   true,
			VideoStatus: VideoIdle,
		})
	}
	s.mu.Unlock()

	s.publish(Event{Type: EventPlanReplaced, Epoch: epoch})
	return epoch
}

// Epoch returns the current plan epoch.
func (s *Store) Epoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// List returns deep copies of all scenes in storyboard order.
func (s *Store) List() []*Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Scene, 0, len(s.scenes))
	for _, sc := range s.scenes {
		out = append(out, sc.clone())
	}
	return out
}

// Get returns a deep copy of one scene, or nil if unknown.
func (s *Store) Get(id string) *Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc := s.find(id); sc != nil {
		return sc.clone()
	}
	return nil
}

func (s *Store) find(id string) *Scene {
	for _, sc := range s.scenes {
		if sc.ID == id {
			return sc
		}
	}
	return nil
}

// Artifacts is the complete output of a scene materialization. It is
// committed atomically or not at all.
type Artifacts struct {
	StartFrame  gateway.ImageBlob
	EndFrame    gateway.ImageBlob
	Suggestions Suggestions
	FinalPrompt string
}

// CommitMaterialization installs a full artifact set on a scene. The
// write is dropped when the epoch or revision is stale (the plan was
// replaced or the scene was reworked while generation ran).
func (s *Store) CommitMaterialization(epoch int64, sceneID string, revision int, a Artifacts) bool {
	s.mu.Lock()
	sc := s.find(sceneID)
	if sc == nil || sc.Epoch != epoch || sc.Revision != revision {
		s.mu.Unlock()
		return false
	}
	start, end := a.StartFrame, a.EndFrame
	sugg := a.Suggestions
	sc.StartFrame = &start
	sc.EndFrame = &end
	sc.Suggestions = &sugg
	sc.FinalVideoPrompt = a.FinalPrompt
	sc.IsLoading = false
	sc.LastError = ""
	s.mu.Unlock()

	s.publish(Event{Type: EventSceneUpdated, Epoch: epoch, SceneID: sceneID})
	return true
}

// FailMaterialization records a scene failure and clears the loading
// flag. Stale epochs and revisions are dropped like commits.
func (s *Store) FailMaterialization(epoch int64, sceneID string, revision int, err error) bool {
	s.mu.Lock()
	sc := s.find(sceneID)
	if sc == nil || sc.Epoch != epoch || sc.Revision != revision {
		s.mu.Unlock()
		return false
	}
	sc.IsLoading = false
	sc.LastError = err.Error()
	s.mu.Unlock()

	s.publish(Event{Type: EventSceneUpdated, Epoch: epoch, SceneID: sceneID})
	return true
}

// BeginRework resets a scene for re-materialization with a new
// description. The reset is synchronous: frames, suggestions and the
// final prompt are cleared before this returns, so no reader can pair
// the new description with stale artifacts. Video fields are left
// untouched. Returns the scene's new revision.
func (s *Store) BeginRework(sceneID, newDescription string) (epoch int64, revision int, err error) {
	s.mu.Lock()
	sc := s.find(sceneID)
	if sc == nil {
		s.mu.Unlock()
		return 0, 0, &ValidationError{Reason: fmt.Sprintf("scene %s not found", sceneID)}
	}
	sc.Revision++
	sc.Description = newDescription
	sc.StartFrame = nil
	sc.EndFrame = nil
	sc.Suggestions = nil
	sc.FinalVideoPrompt = ""
	sc.IsLoading = true
	sc.LastError = ""
	epoch, revision = sc.Epoch, sc.Revision
	s.mu.Unlock()

	s.publish(Event{Type: EventSceneUpdated, Epoch: epoch, SceneID: sceneID})
	return epoch, revision, nil
}

// TryBeginRender atomically checks render preconditions and moves the
// scene to pending. It returns copies of the prompt and start frame the
// render must use.
func (s *Store) TryBeginRender(sceneID string) (prompt string, startFrame gateway.ImageBlob, err error) {
	s.mu.Lock()
	sc := s.find(sceneID)
	if sc == nil {
		s.mu.Unlock()
		return "", gateway.ImageBlob{}, &ValidationError{Reason: fmt.Sprintf("scene %s not found", sceneID)}
	}
	if !sc.RenderReady() {
		s.mu.Unlock()
		return "", gateway.ImageBlob{}, &ValidationError{Reason: "scene has no final video prompt or start frame yet"}
	}
	if sc.VideoStatus == VideoPending {
		s.mu.Unlock()
		return "", gateway.ImageBlob{}, &ValidationError{Reason: "scene render already in progress"}
	}
	sc.VideoStatus = VideoPending
	sc.VideoProgress = "Starting video generation..."
	sc.VideoPath = ""
	prompt = sc.FinalVideoPrompt
	startFrame = gateway.ImageBlob{
		Data:     append([]byte(nil), sc.StartFrame.Data...),
		MIMEType: sc.StartFrame.MIMEType,
	}
	epoch := sc.Epoch
	s.mu.Unlock()

	s.publish(Event{Type: EventSceneUpdated, Epoch: epoch, SceneID: sceneID})
	return prompt, startFrame, nil
}

// SetVideoProgress updates the cosmetic progress line. The write is
// dropped unless the scene is still pending, so late poll callbacks can
// never resurrect progress on a finished render.
func (s *Store) SetVideoProgress(sceneID, progress string) bool {
	s.mu.Lock()
	sc := s.find(sceneID)
	if sc == nil || sc.VideoStatus != VideoPending {
		s.mu.Unlock()
		return false
	}
	sc.VideoProgress = progress
	epoch := sc.Epoch
	s.mu.Unlock()

	s.publish(Event{Type: EventSceneUpdated, Epoch: epoch, SceneID: sceneID})
	return true
}

// CompleteVideo moves a pending render to done with its artifact path.
func (s *Store) CompleteVideo(sceneID, videoPath string) bool {
	s.mu.Lock()
	sc := s.find(sceneID)
	if sc == nil || sc.VideoStatus != VideoPending {
		s.mu.Unlock()
		return false
	}
	sc.VideoStatus = VideoDone
	sc.VideoProgress = "Completed"
	sc.VideoPath = videoPath
	epoch := sc.Epoch
	s.mu.Unlock()

	s.publish(Event{Type: EventSceneUpdated, Epoch: epoch, SceneID: sceneID})
	return true
}

// FailVideo moves a pending render to error with a diagnostic.
func (s *Store) FailVideo(sceneID string, renderErr error) bool {
	s.mu.Lock()
	sc := s.find(sceneID)
	if sc == nil || sc.VideoStatus != VideoPending {
		s.mu.Unlock()
		return false
	}
	sc.VideoStatus = VideoError
	sc.VideoProgress = renderErr.Error()
	epoch := sc.Epoch
	s.mu.Unlock()

	s.publish(Event{Type: EventSceneUpdated, Epoch: epoch, SceneID: sceneID})
	return true
}

// Counts returns scene totals for the status endpoint and the tray.
func (s *Store) Counts() (total, materialized, rendering, rendered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.scenes {
		total++
		if sc.Materialized() {
			materialized++
		}
		switch sc.VideoStatus {
		case VideoPending:
			rendering++
		case VideoDone:
			rendered++
		}
	}
	return total, materialized, rendering, rendered
}

// Subscribe registers a change listener. The channel is buffered and
// writes are non-blocking; slow consumers lose events rather than
// stalling the store.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
