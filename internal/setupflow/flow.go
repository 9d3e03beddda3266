package setupflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/muurk/squidly/internal/logging"
	"github.com/muurk/squidly/internal/sdata"
	"github.com/muurk/squidly/internal/walkthrough"
	"go.uber.org/zap"
)

var (
	// ErrNotOpen is returned for input while the flow is closed.
	ErrNotOpen = errors.New("setup flow not open")

	// ErrWrongScreen is returned for input that belongs to another screen.
	ErrWrongScreen = errors.New("input not valid on this screen")

	// ErrUnknownProfile is returned when selecting a profile that is not offered.
	ErrUnknownProfile = errors.New("unknown profile")

	// ErrUnknownMethod is returned for access methods without a walkthrough.
	ErrUnknownMethod = errors.New("unknown access method")

	// ErrIncomplete is returned by Continue and Confirm before a choice is made.
	ErrIncomplete = errors.New("nothing selected")
)

// ProfileStore lists and creates participant profiles.
type ProfileStore interface {
	Profiles(ctx context.Context) ([]Profile, error)
	CreateProfile(ctx context.Context, name string) (Profile, error)
}

// Starter starts a walkthrough. *walkthrough.Controller implements it.
type Starter interface {
	Start(ctx context.Context, stepID string) error
}

// View is what a front-end renders for the flow.
type View struct {
	Open            bool
	Screen          Screen
	Profiles        []Profile
	SelectedProfile string
	NewName         string
	ProfileName     string
	SelectedMethod  Method
}

// CanContinue reports whether the profile screen has a profile to continue with.
func (v View) CanContinue() bool {
	return v.SelectedProfile != "" || strings.TrimSpace(v.NewName) != ""
}

// CanConfirm reports whether an access method with a walkthrough is selected.
func (v View) CanConfirm() bool {
	_, ok := v.SelectedMethod.StartStep()
	return ok
}

// Config wires a Flow. Channel is the walkthrough frame of the session; nil
// keeps the flow local to an in-memory store.
type Config struct {
	Channel     sdata.Channel
	Profiles    ProfileStore
	Walkthrough Starter
	Mask        walkthrough.Mask
	Occupancy   walkthrough.Occupancy

	// OnChange is called with the new view after every local or remote change.
	// Input made from inside OnChange while a remote value is applied is ignored.
	OnChange func(View)

	Logger *zap.Logger
}

// Flow is the replicated profile and access method selection shown before a
// walkthrough starts. Either side of a session can drive it; each mirrors the
// other through the StatePath key.
type Flow struct {
	channel   sdata.Channel
	profiles  ProfileStore
	starter   Starter
	mask      walkthrough.Mask
	occupancy walkthrough.Occupancy
	onChange  func(View)
	logger    *zap.Logger
	echoes    *sdata.Echoes

	mu       sync.Mutex
	view     View
	applying bool
	last     json.RawMessage
	cancel   context.CancelFunc
	unsubs   []func()
}

// New creates a closed flow.
func New(cfg Config) *Flow {
	f := &Flow{
		channel:   cfg.Channel,
		profiles:  cfg.Profiles,
		starter:   cfg.Walkthrough,
		mask:      cfg.Mask,
		occupancy: cfg.Occupancy,
		onChange:  cfg.OnChange,
		logger:    cfg.Logger,
		echoes:    sdata.NewEchoes(0),
	}
	if f.logger == nil {
		f.logger = logging.Named("setup")
	}
	if f.channel == nil {
		f.channel = sdata.NewStore(f.logger)
	}
	return f
}

// View returns a copy of the current view.
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Open shows the profile screen, publishes the offered profiles and resets the
// replicated state so the other side follows.
func (f *Flow) Open(ctx context.Context) error {
	profiles := f.loadProfiles(ctx)

	if err := f.begin(ctx, View{Open: true, Screen: ScreenProfileSelection, Profiles: profiles}); err != nil {
		return err
	}

	if err := f.write(ctx, &State{Screen: ScreenProfileSelection}); err != nil {
		return err
	}
	f.subscribe()
	f.notify(f.View())

	f.logger.Info("Setup opened", zap.Int("profiles", len(profiles)))
	return nil
}

// Attach shows the flow in whatever state the other side left it and follows
// it from there.
func (f *Flow) Attach(ctx context.Context) error {
	raw, err := f.channel.Get(ctx, ProfilesPath)
	if err != nil {
		return fmt.Errorf("failed to read profiles: %w", err)
	}

	if err := f.begin(ctx, View{Open: true, Screen: ScreenProfileSelection, Profiles: decodeProfiles(raw)}); err != nil {
		return err
	}
	f.subscribe()
	f.notify(f.View())
	return nil
}

// SelectProfile picks an existing profile on the profile screen.
func (f *Flow) SelectProfile(ctx context.Context, name string) error {
	f.mu.Lock()
	if ok, err := f.acceptLocked(ScreenProfileSelection); !ok {
		f.mu.Unlock()
		return err
	}
	if !hasProfile(f.view.Profiles, name) {
		f.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	f.view.SelectedProfile = name
	f.view.NewName = ""
	view := f.snapshotLocked()
	f.mu.Unlock()

	f.notify(view)
	return f.write(ctx, &State{Screen: ScreenProfileSelection, SelectedProfile: name})
}

// TypeName replaces the new-profile name and clears any selected profile.
func (f *Flow) TypeName(ctx context.Context, name string) error {
	f.mu.Lock()
	if ok, err := f.acceptLocked(ScreenProfileSelection); !ok {
		f.mu.Unlock()
		return err
	}
	f.view.SelectedProfile = ""
	f.view.NewName = name
	view := f.snapshotLocked()
	f.mu.Unlock()

	f.notify(view)
	return f.write(ctx, &State{Screen: ScreenProfileSelection, NewName: name})
}

// Continue moves to the access method screen, creating a profile first when a
// new name was typed. A failure to create the profile is logged and the flow
// carries on with the name.
func (f *Flow) Continue(ctx context.Context) error {
	f.mu.Lock()
	if ok, err := f.acceptLocked(ScreenProfileSelection); !ok {
		f.mu.Unlock()
		return err
	}
	if !f.view.CanContinue() {
		f.mu.Unlock()
		return fmt.Errorf("%w: choose a profile or type a name", ErrIncomplete)
	}
	name := f.view.SelectedProfile
	isNew := name == ""
	if isNew {
		name = strings.TrimSpace(f.view.NewName)
	}
	f.mu.Unlock()

	if isNew && f.profiles != nil {
		p, err := f.profiles.CreateProfile(ctx, name)
		if err != nil {
			f.logger.Warn("Failed to create profile", zap.String("name", name), zap.Error(err))
		} else {
			f.logger.Info("Created profile", zap.String("name", p.Name), zap.String("id", p.ProfileID))
			f.mu.Lock()
			f.view.Profiles = append(f.view.Profiles, p)
			profiles := append([]Profile(nil), f.view.Profiles...)
			f.mu.Unlock()
			if err := f.channel.Set(ctx, ProfilesPath, profiles); err != nil {
				f.logger.Warn("Failed to publish profiles", zap.Error(err))
			}
		}
	}

	view := f.showMethods(name)
	f.notify(view)
	return f.write(ctx, &State{Screen: ScreenAccessMethodSelection, ProfileName: name})
}

// SelectMethod picks an access method on the method screen.
func (f *Flow) SelectMethod(ctx context.Context, m Method) error {
	if _, ok := m.StartStep(); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}

	f.mu.Lock()
	if ok, err := f.acceptLocked(ScreenAccessMethodSelection); !ok {
		f.mu.Unlock()
		return err
	}
	f.view.SelectedMethod = m
	view := f.snapshotLocked()
	last := f.last
	f.mu.Unlock()

	f.notify(view)

	fields := map[string]any{"selectedMethod": m}
	if patch, err := json.Marshal(fields); err == nil {
		if merged, err := sdata.Merge(last, patch); err == nil {
			if f.echoes.Seen(merged) {
				return nil
			}
			f.mu.Lock()
			f.last = merged
			f.mu.Unlock()
			f.echoes.Record(merged)
		}
	}
	if err := f.channel.Update(ctx, StatePath, fields); err != nil {
		return fmt.Errorf("failed to publish access method: %w", err)
	}
	return nil
}

// Confirm records the chosen profile and method, closes the flow and starts
// the walkthrough for the method. The other side closes when it sees the
// confirmation and follows the walkthrough this side drives.
func (f *Flow) Confirm(ctx context.Context) error {
	f.mu.Lock()
	if ok, err := f.acceptLocked(ScreenAccessMethodSelection); !ok {
		f.mu.Unlock()
		return err
	}
	method := f.view.SelectedMethod
	name := f.view.ProfileName
	f.mu.Unlock()

	stepID, ok := method.StartStep()
	if !ok {
		return fmt.Errorf("%w: choose an access method", ErrIncomplete)
	}

	if err := f.channel.Set(ctx, SelectedProfilePath, Selection{Name: name, Method: method}); err != nil {
		f.logger.Warn("Failed to save selected profile", zap.Error(err))
	}

	st := &State{
		Screen:         ScreenStartWalkthrough,
		ProfileName:    name,
		SelectedMethod: method,
		StartStepID:    stepID,
	}
	if err := f.write(ctx, st); err != nil {
		return err
	}

	return f.startWalkthrough(ctx, stepID)
}

// Close hides the flow. With openDefault the shared view is handed back to the
// default occupier.
func (f *Flow) Close(ctx context.Context, openDefault bool) error {
	f.mu.Lock()
	wasOpen := f.view.Open
	unsubs := f.unsubs
	cancel := f.cancel
	f.unsubs = nil
	f.cancel = nil
	f.view = View{}
	f.last = nil
	f.mu.Unlock()
	f.echoes.Reset()

	for _, u := range unsubs {
		u()
	}
	if cancel != nil {
		cancel()
	}

	if wasOpen {
		if f.mask != nil {
			f.mask.ClearAreas()
			if err := f.mask.Hide(ctx); err != nil {
				return err
			}
			f.mask.Stop()
		}
		f.notify(View{})
		f.logger.Info("Setup closed", zap.Bool("open_default", openDefault))
	}

	if openDefault && f.occupancy != nil {
		if err := f.occupancy.ReturnToDefault(ctx); err != nil {
			return fmt.Errorf("failed to return session to default view: %w", err)
		}
	}
	return nil
}

// begin resets the local view and shows the setup mask.
func (f *Flow) begin(ctx context.Context, view View) error {
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return errors.New("setup flow already open")
	}
	f.view = view
	f.mu.Unlock()

	if f.mask == nil {
		return nil
	}
	f.mask.Start()
	f.setMaskArea()
	return f.mask.Show(ctx)
}

func (f *Flow) subscribe() {
	ctx, cancel := context.WithCancel(context.Background())
	unsubs := []func(){
		f.channel.OnValue(StatePath, func(raw json.RawMessage) { f.onState(ctx, raw) }),
		f.channel.OnValue(ProfilesPath, f.onProfiles),
	}

	f.mu.Lock()
	f.cancel = cancel
	f.unsubs = unsubs
	f.mu.Unlock()
}

func (f *Flow) onState(ctx context.Context, raw json.RawMessage) {
	if ctx.Err() != nil {
		return
	}
	if f.echoes.Match(raw) {
		return
	}
	st := decodeState(raw)
	if st == nil {
		return
	}

	// The confirming side starts and drives the walkthrough. This side closes
	// and picks the walkthrough up from its replicated state.
	if st.Screen == ScreenStartWalkthrough {
		f.logger.Debug("Remote setup confirmed",
			zap.String("profile", st.ProfileName),
			zap.String("method", string(st.SelectedMethod)),
			zap.String("step", st.StartStepID),
		)
		if err := f.Close(ctx, false); err != nil {
			f.logger.Error("Failed to close setup", zap.Error(err))
		}
		return
	}

	f.mu.Lock()
	if !f.view.Open {
		f.mu.Unlock()
		return
	}
	f.last = append(json.RawMessage(nil), raw...)
	screenChanged := f.view.Screen != st.Screen

	switch st.Screen {
	case ScreenProfileSelection:
		f.view.Screen = ScreenProfileSelection
		f.view.ProfileName = ""
		f.view.SelectedMethod = ""
		f.view.SelectedProfile = st.SelectedProfile
		if st.SelectedProfile != "" {
			f.view.NewName = ""
		} else {
			f.view.NewName = st.NewName
		}
	case ScreenAccessMethodSelection:
		f.view.Screen = ScreenAccessMethodSelection
		f.view.ProfileName = st.ProfileName
		f.view.SelectedMethod = ""
		if _, ok := st.SelectedMethod.StartStep(); ok {
			f.view.SelectedMethod = st.SelectedMethod
		}
	default:
		f.mu.Unlock()
		f.logger.Warn("Ignoring unknown setup screen", zap.String("screen", string(st.Screen)))
		return
	}
	f.applying = true
	view := f.snapshotLocked()
	f.mu.Unlock()

	if screenChanged {
		f.setMaskArea()
	}
	f.notify(view)

	f.mu.Lock()
	f.applying = false
	f.mu.Unlock()
}

func (f *Flow) onProfiles(raw json.RawMessage) {
	profiles := decodeProfiles(raw)
	if len(profiles) == 0 {
		return
	}

	f.mu.Lock()
	if !f.view.Open || reflect.DeepEqual(f.view.Profiles, profiles) {
		f.mu.Unlock()
		return
	}
	f.view.Profiles = profiles
	view := f.snapshotLocked()
	f.mu.Unlock()

	f.notify(view)
}

func (f *Flow) startWalkthrough(ctx context.Context, stepID string) error {
	if err := f.Close(ctx, false); err != nil {
		return err
	}
	if f.starter == nil {
		f.logger.Warn("No walkthrough to start", zap.String("step", stepID))
		return nil
	}
	return f.starter.Start(ctx, stepID)
}

// showMethods switches the local view to the method screen for profile.
func (f *Flow) showMethods(profile string) View {
	f.mu.Lock()
	f.view.Screen = ScreenAccessMethodSelection
	f.view.ProfileName = profile
	f.view.SelectedMethod = ""
	view := f.snapshotLocked()
	f.mu.Unlock()

	f.setMaskArea()
	return view
}

// acceptLocked reports whether local input for screen is accepted. Input while
// a remote value is being applied is dropped without error.
func (f *Flow) acceptLocked(screen Screen) (bool, error) {
	switch {
	case !f.view.Open:
		return false, ErrNotOpen
	case f.applying:
		f.logger.Debug("Ignoring input while following remote setup")
		return false, nil
	case f.view.Screen != screen:
		return false, fmt.Errorf("%w: on %s", ErrWrongScreen, f.view.Screen)
	}
	return true, nil
}

func (f *Flow) write(ctx context.Context, st *State) error {
	raw, err := sdata.Encode(st)
	if err != nil {
		return fmt.Errorf("failed to encode setup state: %w", err)
	}

	f.mu.Lock()
	f.last = raw
	f.mu.Unlock()

	if f.echoes.Seen(raw) {
		return nil
	}
	f.echoes.Record(raw)

	if err := f.channel.Set(ctx, StatePath, raw); err != nil {
		return fmt.Errorf("failed to publish setup state: %w", err)
	}
	return nil
}

// loadProfiles reads profiles from the store, then the session, then falls back
// to FallbackProfiles. Whatever is found is published for the other side.
func (f *Flow) loadProfiles(ctx context.Context) []Profile {
	var profiles []Profile
	if f.profiles != nil {
		p, err := f.profiles.Profiles(ctx)
		if err != nil {
			f.logger.Warn("Failed to load profiles", zap.Error(err))
		}
		profiles = p
	}

	if len(profiles) == 0 {
		raw, err := f.channel.Get(ctx, ProfilesPath)
		if err != nil {
			f.logger.Warn("Failed to read session profiles", zap.Error(err))
		}
		profiles = decodeProfiles(raw)
	}

	if len(profiles) == 0 {
		profiles = append([]Profile(nil), FallbackProfiles...)
	}

	if err := f.channel.Set(ctx, ProfilesPath, profiles); err != nil {
		f.logger.Warn("Failed to publish profiles", zap.Error(err))
	}
	return profiles
}

// setMaskArea leaves a single empty area so the setup mask covers everything.
func (f *Flow) setMaskArea() {
	if f.mask == nil {
		return
	}
	f.mask.ClearAreas()
	f.mask.AddArea(walkthrough.GridArea(nil, 3, 4, 0, 0, 0, 0))
}

func (f *Flow) notify(view View) {
	if f.onChange != nil {
		f.onChange(view)
	}
}

func (f *Flow) snapshotLocked() View {
	v := f.view
	v.Profiles = append([]Profile(nil), f.view.Profiles...)
	return v
}

func hasProfile(profiles []Profile, name string) bool {
	for _, p := range profiles {
		if p.Name == name {
			return true
		}
	}
	return false
}
