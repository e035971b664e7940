package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/ilievs/pinboard/protocol"
	"github.com/ilievs/pinboard/widget"
)

type stubScheduler struct {
	mu  sync.Mutex
	ids []int
}

func (s *stubScheduler) Schedule(dashID int) {
	s.mu.Lock()
	s.ids = append(s.ids, dashID)
	s.mu.Unlock()
}

func (s *stubScheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func mustWidget(t *testing.T, body string) *widget.Widget {
	t.Helper()
	var w widget.Widget
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		t.Fatalf("decode widget: %v", err)
	}
	return &w
}

func testDashboard(t *testing.T) *Dashboard {
	return &Dashboard{
		ID:       1,
		Name:     "My Dashboard",
		Owner:    "dima@mail.ua",
		IsActive: true,
		Devices:  []Device{{ID: 0, Name: "My Device"}},
		Widgets: []*widget.Widget{
			mustWidget(t, `{"id":1,"type":"SLIDER","pin":4,"pinType":"VIRTUAL","label":"Some Text","x":1,"y":1,"width":2,"height":1,"min":0,"max":255}`),
		},
	}
}

type fixture struct {
	store   *Store
	router  *Router
	persist *stubScheduler
	handler *Handler
	device  *recordingSession
	app     *recordingSession
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:   NewStore(testDashboard(t)),
		router:  NewRouter(nil, 256),
		persist: &stubScheduler{},
		device:  newHardwareSession("hw", 1, 0),
		app:     newAppSession("app", 1),
	}
	f.handler = NewHandler(f.store, f.router, f.persist, nil)
	for _, s := range []Session{f.device, f.app} {
		if err := f.router.AddSession(s); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

// setProperty sends "<pin> <body>" as the device would, numbering messages
// from 1.
func (f *fixture) setProperty(messageID, pin int, property, value string) protocol.Response {
	return f.handler.HandleSetProperty(f.device, messageID, pin, widget.PinVirtual, property+" "+value)
}

// drain waits for queued frames and returns what each session received.
func (f *fixture) drain() (device, app []string) {
	f.router.Close()
	return f.device.Bodies(), f.app.Bodies()
}

func (f *fixture) widget(t *testing.T, id int64) *widget.Widget {
	t.Helper()
	d, err := f.handler.Dashboard(1)
	if err != nil {
		t.Fatal(err)
	}
	w := d.Widget(id)
	if w == nil {
		t.Fatalf("widget %d not found", id)
	}
	return w
}

func ok(id int) string      { return protocol.Ack(id, protocol.OK).String() }
func illegal(id int) string { return protocol.Ack(id, protocol.IllegalCommandBody).String() }

func setPropertyFrame(id int, body string) string {
	return fmt.Sprintf("%s %d %s", protocol.CmdSetProperty, id, body)
}

func TestSetWidgetProperty(t *testing.T) {
	f := newFixture(t)

	if r := f.setProperty(1, 4, "label", "MyNewLabel"); r != protocol.OK {
		t.Fatal("Expected OK, but got", r)
	}
	if got := f.widget(t, 1).Label; got != "MyNewLabel" {
		t.Fatal("Expected label MyNewLabel, but got", got)
	}

	device, app := f.drain()
	if !slices.Equal(device, []string{ok(1)}) {
		t.Fatal("unexpected device frames", device)
	}
	if !slices.Equal(app, []string{setPropertyFrame(1, "1-0 4 label MyNewLabel")}) {
		t.Fatal("unexpected app frames", app)
	}
	if f.persist.Count() != 1 {
		t.Fatal("Expected one persist schedule, but got", f.persist.Count())
	}
}

func TestSetButtonProperty(t *testing.T) {
	f := newFixture(t)
	err := f.handler.CreateWidget(1, mustWidget(t, `{"id":102, "width":1, "height":1, "x":5, "y":0, "tabId":0, "onLabel":"On", "offLabel":"Off" , "type":"BUTTON", "pinType":"VIRTUAL", "pin":17}`))
	if err != nil {
		t.Fatal(err)
	}

	f.setProperty(1, 17, "onLabel", "вкл")
	f.setProperty(2, 17, "offLabel", "выкл")

	sw := f.widget(t, 102).Payload.(*widget.Switch)
	if sw.OnLabel != "вкл" || sw.OffLabel != "выкл" {
		t.Fatalf("unexpected labels %+v", sw)
	}
	device, app := f.drain()
	if !slices.Equal(device, []string{ok(1), ok(2)}) {
		t.Fatal("unexpected device frames", device)
	}
	expected := []string{
		setPropertyFrame(1, "1-0 17 onLabel вкл"),
		setPropertyFrame(2, "1-0 17 offLabel выкл"),
	}
	if !slices.Equal(app, expected) {
		t.Fatal("unexpected app frames", app)
	}
}

func TestSetBooleanProperty(t *testing.T) {
	f := newFixture(t)
	_ = f.handler.CreateWidget(1, mustWidget(t, `{"id":102, "width":1, "height":1, "x":5, "y":0, "tabId":0, "label":"Some Text", "type":"PLAYER", "pinType":"VIRTUAL", "pin":17}`))

	if r := f.setProperty(1, 17, "isOnPlay", "true"); r != protocol.OK {
		t.Fatal("Expected OK, but got", r)
	}
	if !f.widget(t, 102).Payload.(*widget.Player).IsOnPlay {
		t.Fatal("isOnPlay was not set")
	}
	_, app := f.drain()
	if !slices.Equal(app, []string{setPropertyFrame(1, "1-0 17 isOnPlay true")}) {
		t.Fatal("unexpected app frames", app)
	}
}

func TestSetStringArrayPropertyForMenu(t *testing.T) {
	f := newFixture(t)
	_ = f.handler.CreateWidget(1, mustWidget(t, `{"id":102, "width":1, "height":1, "x":5, "y":0, "tabId":0, "label":"Some Text", "type":"MENU", "pinType":"VIRTUAL", "pin":17}`))

	f.setProperty(1, 17, "labels", "label1 label2 label3")

	labels := f.widget(t, 102).Payload.(*widget.Menu).Labels
	if !slices.Equal(labels, []string{"label1", "label2", "label3"}) {
		t.Fatal("unexpected labels", labels)
	}
	_, app := f.drain()
	if !slices.Equal(app, []string{setPropertyFrame(1, "1-0 17 labels label1 label2 label3")}) {
		t.Fatal("unexpected app frames", app)
	}
}

func TestSetUrlForVideo(t *testing.T) {
	f := newFixture(t)
	_ = f.handler.CreateWidget(1, mustWidget(t, `{"id":102, "width":1, "height":1, "x":5, "y":0, "tabId":0, "label":"Some Text", "type":"VIDEO", "pinType":"VIRTUAL", "pin":17}`))

	f.setProperty(1, 17, "url", "http://123.com")

	if got := f.widget(t, 102).Payload.(*widget.Video).URL; got != "http://123.com" {
		t.Fatal("unexpected url", got)
	}
}

func TestSetWrongWidgetProperty(t *testing.T) {
	for _, tc := range []struct{ property, value string }{
		{"YYY", "MyNewLabel"},
		{"x", "0"},
		{"url", "0"},
	} {
		t.Run(tc.property, func(t *testing.T) {
			f := newFixture(t)
			if r := f.setProperty(1, 4, tc.property, tc.value); r != protocol.IllegalCommandBody {
				t.Fatal("Expected ILLEGAL_COMMAND_BODY, but got", r)
			}
			w := f.widget(t, 1)
			if w.Label != "Some Text" || w.X != 1 {
				t.Fatalf("widget changed: %+v", w)
			}
			device, app := f.drain()
			if !slices.Equal(device, []string{illegal(1)}) {
				t.Fatal("unexpected device frames", device)
			}
			if len(app) != 0 {
				t.Fatal("rejected command was broadcast", app)
			}
			if f.persist.Count() != 0 {
				t.Fatal("rejected command scheduled a persist")
			}
		})
	}
}

func TestSetColorForWidget(t *testing.T) {
	f := newFixture(t)

	f.setProperty(1, 4, "color", "#23C48E")

	if got := f.widget(t, 1).Color; got != 600084223 {
		t.Fatal("Expected color 600084223, but got", got)
	}
	_, app := f.drain()
	if !slices.Equal(app, []string{setPropertyFrame(1, "1-0 4 color #23C48E")}) {
		t.Fatal("unexpected app frames", app)
	}
}

func TestSetMinMaxProperty(t *testing.T) {
	f := newFixture(t)

	f.setProperty(1, 4, "min", "10.1")
	f.setProperty(2, 4, "max", "20.2")

	r := f.widget(t, 1).Payload.(*widget.Range)
	if r.Min != 10.1 || r.Max != 20.2 {
		t.Fatalf("unexpected range %+v", r)
	}
	device, app := f.drain()
	if !slices.Equal(device, []string{ok(1), ok(2)}) {
		t.Fatal("unexpected device frames", device)
	}
	expected := []string{
		setPropertyFrame(1, "1-0 4 min 10.1"),
		setPropertyFrame(2, "1-0 4 max 20.2"),
	}
	if !slices.Equal(app, expected) {
		t.Fatal("unexpected app frames", app)
	}
}

func TestSetMinMaxWrongFloat(t *testing.T) {
	f := newFixture(t)

	f.setProperty(1, 4, "min", "10.11-1")
	f.setProperty(2, 4, "max", "20.22-2")

	r := f.widget(t, 1).Payload.(*widget.Range)
	if r.Min != 0 || r.Max != 255 {
		t.Fatalf("range changed: %+v", r)
	}
	device, app := f.drain()
	if !slices.Equal(device, []string{illegal(1), illegal(2)}) {
		t.Fatal("unexpected device frames", device)
	}
	if len(app) != 0 {
		t.Fatal("rejected command was broadcast", app)
	}
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)

	if r := f.handler.HandleSetProperty(f.device, 1, 4, widget.PinVirtual, "label"); r != protocol.IllegalCommandBody {
		t.Fatal("Expected ILLEGAL_COMMAND_BODY, but got", r)
	}
	device, _ := f.drain()
	if !slices.Equal(device, []string{illegal(1)}) {
		t.Fatal("unexpected device frames", device)
	}
}

func TestUnknownPinIsRejected(t *testing.T) {
	f := newFixture(t)

	if r := f.setProperty(1, 122, "label", "new"); r != protocol.IllegalCommandBody {
		t.Fatal("Expected ILLEGAL_COMMAND_BODY, but got", r)
	}
	// digital pin 4 is not the virtual pin 4 the slider listens on
	if r := f.handler.HandleSetProperty(f.device, 2, 4, widget.PinDigital, "label new"); r != protocol.IllegalCommandBody {
		t.Fatal("Expected ILLEGAL_COMMAND_BODY, but got", r)
	}
}

func TestAppSessionCannotSetProperty(t *testing.T) {
	f := newFixture(t)

	if r := f.handler.HandleSetProperty(f.app, 1, 4, widget.PinVirtual, "label x"); r != protocol.IllegalCommandBody {
		t.Fatal("Expected ILLEGAL_COMMAND_BODY, but got", r)
	}
	if f.widget(t, 1).Label != "Some Text" {
		t.Fatal("app session changed the widget")
	}
}

func TestSetColorOnInactiveDashboard(t *testing.T) {
	f := newFixture(t)
	if err := f.handler.Deactivate(1); err != nil {
		t.Fatal(err)
	}
	scheduled := f.persist.Count()

	if r := f.setProperty(1, 4, "color", "#23C48E"); r != protocol.OK {
		t.Fatal("Expected OK, but got", r)
	}
	if got := f.widget(t, 1).Color; got != 0 {
		t.Fatal("inactive dashboard was mutated, color", got)
	}
	// still validated while inactive
	if r := f.setProperty(2, 4, "x", "0"); r != protocol.IllegalCommandBody {
		t.Fatal("Expected ILLEGAL_COMMAND_BODY, but got", r)
	}

	device, app := f.drain()
	if !slices.Equal(device, []string{ok(1), illegal(2)}) {
		t.Fatal("unexpected device frames", device)
	}
	if len(app) != 0 {
		t.Fatal("inactive dashboard broadcast", app)
	}
	if f.persist.Count() != scheduled {
		t.Fatal("inactive push scheduled a persist")
	}
}

func TestTagWidgetPropertyIsNotRestoredAfterOverriding(t *testing.T) {
	f := newFixture(t)
	member := newHardwareSession("hw2", 1, 1)
	_ = f.router.AddSession(member)
	f.store.Update(1, func(tx *Tx) error {
		tx.Dashboard().Devices = append(tx.Dashboard().Devices, Device{ID: 1, Name: "Second"})
		return nil
	})

	tag := &Tag{ID: widget.TagIDStart, Name: "Tag1", DeviceIDs: []int{1, 0}}
	if err := f.handler.CreateTag(1, tag); err != nil {
		t.Fatal(err)
	}

	slider := f.widget(t, 1)
	slider.Target = widget.TagTarget(widget.TagIDStart)
	if err := f.handler.UpdateWidget(1, slider); err != nil {
		t.Fatal(err)
	}

	// a tag member pushes; the stored tag widget changes once
	if r := f.setProperty(1, 4, "label", "MyNewLabel"); r != protocol.OK {
		t.Fatal("Expected OK, but got", r)
	}
	if got := f.widget(t, 1).Label; got != "MyNewLabel" {
		t.Fatal("Expected MyNewLabel, but got", got)
	}

	_ = f.handler.Deactivate(1)
	slider.Label = "Some Text"
	if err := f.handler.UpdateWidget(1, slider); err != nil {
		t.Fatal(err)
	}
	_ = f.handler.Activate(1)

	if got := f.widget(t, 1).Label; got != "Some Text" {
		t.Fatal("device push survived the widget update, label", got)
	}
	d, _ := f.handler.Dashboard(1)
	if len(d.PinsStorage) != 0 {
		t.Fatal("pins storage not purged", d.PinsStorage)
	}

	_, app := f.drain()
	if !slices.Equal(app, []string{setPropertyFrame(1, "1-0 4 label MyNewLabel")}) {
		t.Fatal("unexpected app frames", app)
	}
	if got := member.Frames(); len(got) != 0 {
		t.Fatal("device push was echoed to another tag member", got)
	}
}

func TestPropertyIsReplayedOnActivate(t *testing.T) {
	f := newFixture(t)

	f.setProperty(1, 4, "label", "new")
	_ = f.handler.Deactivate(1)
	_ = f.handler.Activate(1)

	_, app := f.drain()
	expected := []string{
		setPropertyFrame(1, "1-0 4 label new"),
		setPropertyFrame(protocol.SyncMessageID, "1-0 4 label new"),
	}
	if !slices.Equal(app, expected) {
		t.Fatal("unexpected app frames", app)
	}
}

func TestPropertyIsNotRestoredAfterWidgetCreated(t *testing.T) {
	f := newFixture(t)

	f.setProperty(1, 4, "label", "new")
	if err := f.handler.DeleteWidget(1, 1); err != nil {
		t.Fatal(err)
	}
	err := f.handler.CreateWidget(1, mustWidget(t, `{"id":102, "width":1, "height":1, "x":5, "y":0, "tabId":0, "label":"Some Text", "type":"VIDEO", "pinType":"VIRTUAL", "pin":4}`))
	if err != nil {
		t.Fatal(err)
	}
	_ = f.handler.Deactivate(1)
	_ = f.handler.Activate(1)

	_, app := f.drain()
	for _, frame := range app {
		if frame == setPropertyFrame(protocol.SyncMessageID, "1-0 4 label new") {
			t.Fatal("device push was replayed after the widget was recreated")
		}
	}
}

func TestPropertyIsNotRestoredAfterWidgetUpdated(t *testing.T) {
	f := newFixture(t)
	_ = f.handler.CreateWidget(1, mustWidget(t, `{"id":102, "width":1, "height":1, "x":5, "y":0, "tabId":0, "label":"Some Text", "type":"VIDEO", "pinType":"VIRTUAL", "pin":17}`))

	f.setProperty(1, 17, "label", "new")
	if err := f.handler.UpdateWidget(1, mustWidget(t, `{"id":102, "width":1, "height":1, "x":5, "y":0, "tabId":0, "label":"Some Text 2", "type":"VIDEO", "pinType":"VIRTUAL", "pin":17}`)); err != nil {
		t.Fatal(err)
	}
	_ = f.handler.Deactivate(1)
	_ = f.handler.Activate(1)

	if got := f.widget(t, 102).Label; got != "Some Text 2" {
		t.Fatal("Expected Some Text 2, but got", got)
	}
	_, app := f.drain()
	if slices.Contains(app, setPropertyFrame(protocol.SyncMessageID, "1-0 17 label new")) {
		t.Fatal("device push was replayed after the widget was updated")
	}
}

func TestAppPropertyIsNotOverriddenOnActivate(t *testing.T) {
	f := newFixture(t)

	f.setProperty(1, 4, "label", "fromDevice")
	f.setProperty(2, 4, "color", "#23C48E")
	if _, err := f.handler.AppSetProperty("other", 3, 1, 1, "label", "fromApp"); err != nil {
		t.Fatal(err)
	}
	_ = f.handler.Deactivate(1)
	_ = f.handler.Activate(1)

	if got := f.widget(t, 1).Label; got != "fromApp" {
		t.Fatal("Expected fromApp, but got", got)
	}
	_, app := f.drain()
	expected := []string{
		setPropertyFrame(1, "1-0 4 label fromDevice"),
		setPropertyFrame(2, "1-0 4 color #23C48E"),
		setPropertyFrame(3, "1-0 4 label fromApp"),
		setPropertyFrame(protocol.SyncMessageID, "1-0 4 color #23C48E"),
	}
	if !slices.Equal(app, expected) {
		t.Fatal("unexpected app frames", app)
	}
}

func TestUpdatingTagWidgetKeepsOtherDevicePushes(t *testing.T) {
	f := newFixture(t)
	f.store.Update(1, func(tx *Tx) error {
		tx.Dashboard().Devices = append(tx.Dashboard().Devices, Device{ID: 1})
		return nil
	})
	if err := f.handler.CreateTag(1, &Tag{ID: widget.TagIDStart, DeviceIDs: []int{1}}); err != nil {
		t.Fatal(err)
	}
	tagged := mustWidget(t, `{"id":10,"type":"BUTTON","pin":4,"tagId":100000}`)
	if err := f.handler.CreateWidget(1, tagged); err != nil {
		t.Fatal(err)
	}

	f.setProperty(1, 4, "label", "dev0push")
	tagged.Label = "renamed"
	if err := f.handler.UpdateWidget(1, tagged); err != nil {
		t.Fatal(err)
	}

	d, _ := f.handler.Dashboard(1)
	if len(d.PinsStorage) != 1 || d.PinsStorage[0].DeviceID != 0 {
		t.Fatal("push from an unrelated device was purged", d.PinsStorage)
	}
	_ = f.handler.Deactivate(1)
	_ = f.handler.Activate(1)
	_, app := f.drain()
	if !slices.Contains(app, setPropertyFrame(protocol.SyncMessageID, "1-0 4 label dev0push")) {
		t.Fatal("device push was not replayed", app)
	}
}

func TestWidgetsOnOnePinCannotShareDevice(t *testing.T) {
	f := newFixture(t)
	defer f.router.Close()
	f.store.Update(1, func(tx *Tx) error {
		tx.Dashboard().Devices = append(tx.Dashboard().Devices, Device{ID: 1})
		return nil
	})
	for _, tag := range []*Tag{
		{ID: widget.TagIDStart, DeviceIDs: []int{0}},
		{ID: widget.TagIDStart + 1, DeviceIDs: []int{0}},
		{ID: widget.TagIDStart + 2, DeviceIDs: []int{1}},
	} {
		if err := f.handler.CreateTag(1, tag); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.handler.CreateWidget(1, mustWidget(t, `{"id":10,"type":"SLIDER","pin":9,"tagId":100000}`)); err != nil {
		t.Fatal(err)
	}
	if err := f.handler.CreateWidget(1, mustWidget(t, `{"id":11,"type":"SLIDER","pin":9,"tagId":100001}`)); !errors.Is(err, ErrConflict) {
		t.Fatal("Expected ErrConflict for overlapping tags, but got", err)
	}
	if err := f.handler.CreateWidget(1, mustWidget(t, `{"id":12,"type":"SLIDER","pin":9,"deviceId":0}`)); !errors.Is(err, ErrConflict) {
		t.Fatal("Expected ErrConflict for a direct binding to a tag member, but got", err)
	}
	if err := f.handler.CreateWidget(1, mustWidget(t, `{"id":13,"type":"SLIDER","pin":9,"tagId":100002}`)); err != nil {
		t.Fatal(err)
	}

	// growing a tag must not make two widgets reachable on one pin
	err := f.handler.CreateTag(1, &Tag{ID: widget.TagIDStart + 2, DeviceIDs: []int{0, 1}})
	if !errors.Is(err, ErrConflict) {
		t.Fatal("Expected ErrConflict for the tag update, but got", err)
	}
	d, _ := f.handler.Dashboard(1)
	if got := d.Tag(widget.TagIDStart + 2).DeviceIDs; !slices.Equal(got, []int{1}) {
		t.Fatal("rejected tag update changed members", got)
	}

	if r := f.setProperty(1, 9, "label", "x"); r != protocol.OK {
		t.Fatal("Expected OK, but got", r)
	}
	if got := f.widget(t, 10).Label; got != "x" {
		t.Fatal("Expected x, but got", got)
	}
	if got := f.widget(t, 13).Label; got != "" {
		t.Fatal("push reached a widget of another tag", got)
	}
}

func TestWidgetCommandErrors(t *testing.T) {
	f := newFixture(t)
	defer f.router.Close()

	dup := mustWidget(t, `{"id":1,"type":"BUTTON","pin":5}`)
	if err := f.handler.CreateWidget(1, dup); !errors.Is(err, ErrConflict) {
		t.Fatal("Expected ErrConflict, but got", err)
	}
	samePin := mustWidget(t, `{"id":2,"type":"BUTTON","pin":4}`)
	if err := f.handler.CreateWidget(1, samePin); !errors.Is(err, ErrConflict) {
		t.Fatal("Expected ErrConflict for a used pin, but got", err)
	}
	missing := mustWidget(t, `{"id":9,"type":"BUTTON","pin":9}`)
	if err := f.handler.UpdateWidget(1, missing); !errors.Is(err, ErrWidgetNotFound) {
		t.Fatal("Expected ErrWidgetNotFound, but got", err)
	}
	if err := f.handler.DeleteWidget(1, 9); !errors.Is(err, ErrWidgetNotFound) {
		t.Fatal("Expected ErrWidgetNotFound, but got", err)
	}
	if err := f.handler.CreateWidget(2, missing); !errors.Is(err, ErrDashboardNotFound) {
		t.Fatal("Expected ErrDashboardNotFound, but got", err)
	}
	badTag := &Tag{ID: 5}
	if err := f.handler.CreateTag(1, badTag); !errors.Is(err, ErrConflict) {
		t.Fatal("Expected ErrConflict for a low tag id, but got", err)
	}
}

func TestAppSetPropertyFansOutToTagMembers(t *testing.T) {
	f := newFixture(t)
	other := newAppSession("app2", 1)
	d1 := newHardwareSession("hw1", 1, 1)
	d2 := newHardwareSession("hw2", 1, 2)
	for _, s := range []Session{other, d1, d2} {
		_ = f.router.AddSession(s)
	}
	f.store.Update(1, func(tx *Tx) error {
		tx.Dashboard().Devices = append(tx.Dashboard().Devices, Device{ID: 1}, Device{ID: 2})
		return nil
	})
	_ = f.handler.CreateTag(1, &Tag{ID: widget.TagIDStart, DeviceIDs: []int{1, 2, 2}})
	_ = f.handler.CreateWidget(1, mustWidget(t, `{"id":7,"type":"BUTTON","pin":9,"tagId":100000}`))

	sent, err := f.handler.AppSetProperty("app", 5, 1, 7, "onLabel", "ON")
	if err != nil {
		t.Fatal(err)
	}
	if sent != 2 {
		t.Fatal("Expected 2 device deliveries, but got", sent)
	}
	if _, err := f.handler.AppSetProperty("app", 6, 1, 7, "url", "x"); !errors.Is(err, widget.ErrRejected) {
		t.Fatal("Expected ErrRejected, but got", err)
	}

	device, app := f.drain()
	if len(device) != 0 || len(app) != 0 {
		t.Fatal("origin sessions got frames", device, app)
	}
	if !slices.Equal(other.Bodies(), []string{setPropertyFrame(5, "1-100000 9 onLabel ON")}) {
		t.Fatal("unexpected frames on the other app", other.Bodies())
	}
	for _, d := range []*recordingSession{d1, d2} {
		if !slices.Equal(d.Bodies(), []string{setPropertyFrame(5, "9 onLabel ON")}) {
			t.Fatalf("unexpected frames on %s: %v", d.id, d.Bodies())
		}
	}
}

func TestAppWrite(t *testing.T) {
	f := newFixture(t)

	sent, err := f.handler.AppWrite("app", 3, 1, 1, "100")
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Fatal("Expected 1 device delivery, but got", sent)
	}
	_ = f.handler.Deactivate(1)
	if _, err := f.handler.AppWrite("app", 4, 1, 1, "100"); !errors.Is(err, ErrInactive) {
		t.Fatal("Expected ErrInactive, but got", err)
	}

	device, _ := f.drain()
	if !slices.Equal(device, []string{"hardware 3 vw 4 100"}) {
		t.Fatal("unexpected device frames", device)
	}
}

func TestSequentialCommandsKeepOrder(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 50; i++ {
		f.setProperty(i, 4, "label", fmt.Sprint("label", i))
	}

	device, app := f.drain()
	if len(device) != 50 || len(app) != 50 {
		t.Fatalf("Expected 50 acks and 50 updates, got %d and %d", len(device), len(app))
	}
	for i := range 50 {
		if device[i] != ok(i+1) {
			t.Fatalf("ack %d out of order: %s", i, device[i])
		}
		if app[i] != setPropertyFrame(i+1, fmt.Sprintf("1-0 4 label label%d", i+1)) {
			t.Fatalf("update %d out of order: %s", i, app[i])
		}
	}
}

func TestConcurrentDevicesSameDashboard(t *testing.T) {
	f := newFixture(t)
	second := newHardwareSession("hw-b", 1, 0)
	_ = f.router.AddSession(second)
	_ = f.handler.CreateWidget(1, mustWidget(t, `{"id":2,"type":"KNOB","pin":5}`))

	var doneChan = make(chan int)
	go func() {
		for i := range 100 {
			f.handler.HandleSetProperty(f.device, i, 4, widget.PinVirtual, "label a")
		}
		doneChan <- 1
	}()
	go func() {
		for i := range 100 {
			f.handler.HandleSetProperty(second, i, 5, widget.PinVirtual, "max 10")
		}
		doneChan <- 1
	}()
	<-doneChan
	<-doneChan

	_, app := f.drain()
	if len(app) != 200 {
		t.Fatal("Expected 200 updates, but got", len(app))
	}
	if got := len(second.Frames()); got != 100 {
		t.Fatal("Expected 100 acks on the second device, but got", got)
	}
}
