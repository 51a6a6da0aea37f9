package audio

import "testing"

func TestParseClientsExtractsNodesOnly(t *testing.T) {
	raw := `[
		{"id": 1, "type": "PipeWire:Interface:Node", "info": {"props": {
			"application.process.id": 100,
			"api.alsa.rate": 48000,
			"api.alsa.period-size": 256
		}}},
		{"id": 2, "type": "PipeWire:Interface:Node", "info": {"props": {
			"application.process.id": 200,
			"node.latency": "512/44100"
		}}},
		{"id": 3, "type": "PipeWire:Interface:Client", "info": {"props": {
			"application.process.id": 300
		}}}
	]`

	clients, err := ParseClients(raw)
	if err != nil {
		t.Fatalf("ParseClients: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d: %+v", len(clients), clients)
	}
	if clients[0].PID != 100 || clients[1].PID != 200 {
		t.Fatalf("expected sorted pids 100,200, got %d,%d", clients[0].PID, clients[1].PID)
	}
	if *clients[0].SampleRateHz != 48000 || *clients[0].BufferSizeSamples != 256 {
		t.Fatalf("unexpected client 0 fields: %+v", clients[0])
	}
	if *clients[1].SampleRateHz != 44100 || *clients[1].BufferSizeSamples != 512 {
		t.Fatalf("unexpected client 1 fields: %+v", clients[1])
	}
}

func TestParseClientsMergeNeverOverwrites(t *testing.T) {
	raw := `[
		{"type": "PipeWire:Interface:Node", "info": {"props": {
			"application.process.id": 42,
			"api.alsa.rate": 48000
		}}},
		{"type": "PipeWire:Interface:Node", "info": {"props": {
			"application.process.id": 42,
			"api.alsa.rate": 96000,
			"api.alsa.period-size": 128
		}}}
	]`

	clients, err := ParseClients(raw)
	if err != nil {
		t.Fatalf("ParseClients: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("expected 1 merged client, got %d", len(clients))
	}
	c := clients[0]
	if *c.SampleRateHz != 48000 {
		t.Fatalf("expected first sample rate 48000 to win, got %d", *c.SampleRateHz)
	}
	if *c.BufferSizeSamples != 128 {
		t.Fatalf("expected buffer size from second sighting to fill the gap, got %d", *c.BufferSizeSamples)
	}
}

func TestParseClientsObjectsWrapper(t *testing.T) {
	raw := `{"objects": [
		{"type": "PipeWire:Interface:Node", "info": {"props": {"application.process.id": 7}}}
	]}`
	clients, err := ParseClients(raw)
	if err != nil {
		t.Fatalf("ParseClients: %v", err)
	}
	if len(clients) != 1 || clients[0].PID != 7 {
		t.Fatalf("unexpected result: %+v", clients)
	}
}

func TestParseClientsIgnoresObjectsWithoutPID(t *testing.T) {
	raw := `[{"type": "PipeWire:Interface:Node", "info": {"props": {"audio.rate": 48000}}}]`
	clients, err := ParseClients(raw)
	if err != nil {
		t.Fatalf("ParseClients: %v", err)
	}
	if len(clients) != 0 {
		t.Fatalf("expected no clients without a pid key, got %+v", clients)
	}
}

func TestParseClientsMalformedJSON(t *testing.T) {
	if _, err := ParseClients("not json"); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}
