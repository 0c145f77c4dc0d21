package bus

import (
	"reflect"
	"testing"
)

func TestBroadcastOrderAndUnsubscribe(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("b", func(e Event) { got = append(got, "b:"+e.Name) })
	b.Subscribe("a", func(e Event) { got = append(got, "a:"+e.Name) })
	b.Subscribe("c", func(e Event) { got = append(got, "c:"+e.Name) })
	b.Unsubscribe("c")

	b.Broadcast(Event{Name: "message.new"})

	want := []string{"a:message.new", "b:message.new"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("delivered = %v, want %v", got, want)
	}
}

func TestBroadcastRecoversPanics(t *testing.T) {
	b := New()
	called := false
	b.Subscribe("1-panics", func(Event) { panic("boom") })
	b.Subscribe("2-ok", func(Event) { called = true })

	b.Broadcast(Event{Name: "x"})

	if !called {
		t.Error("handler after panicking handler was not called")
	}
}
