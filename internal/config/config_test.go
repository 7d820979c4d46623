package config

import (
	"errors"
	"testing"

	"github.com/shaiso/conveyr/internal/domain"
)

const validPipeline = `
version: 1
name: app
image: docker.io/shaiso/app
stages:
  - name: build
    commands: ["docker build -t app:check ."]
  - name: test
    depends_on: [build]
    commands: ["pytest -q"]
  - name: publish
    depends_on: [test]
    publish: true
    only_on:
      events: [push]
      branch: main
    secrets: [REGISTRY_USER, REGISTRY_TOKEN]
`

func TestParse_Valid(t *testing.T) {
	p, err := Parse([]byte(validPipeline))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Name != "app" {
		t.Errorf("expected name app, got %s", p.Name)
	}
	if p.MainBranch != "main" {
		t.Errorf("expected default main branch, got %s", p.MainBranch)
	}
	if len(p.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(p.Stages))
	}

	stages := p.DomainStages()

	publish := stages[2]
	if !publish.Publish {
		t.Error("publish stage should carry the publish flag")
	}
	if publish.OnlyOn == nil {
		t.Fatal("publish stage should have a trigger guard")
	}
	if len(publish.OnlyOn.Events) != 1 || publish.OnlyOn.Events[0] != domain.TriggerPush {
		t.Errorf("expected guard events [push], got %v", publish.OnlyOn.Events)
	}
	if publish.OnlyOn.Branch != "main" {
		t.Errorf("expected guard branch main, got %s", publish.OnlyOn.Branch)
	}
	if len(publish.Secrets) != 2 {
		t.Errorf("expected 2 secrets, got %v", publish.Secrets)
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	_, err := Parse([]byte(`
version: 2
name: app
stages:
  - name: build
    commands: ["true"]
`))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestParse_EmptyName(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
stages:
  - name: build
    commands: ["true"]
`))
	if !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
}

func TestParse_NoStages(t *testing.T) {
	_, err := Parse([]byte("version: 1\nname: app\n"))
	if !errors.Is(err, ErrNoStages) {
		t.Errorf("expected ErrNoStages, got %v", err)
	}
}

func TestParse_UnknownEvent(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
name: app
stages:
  - name: build
    commands: ["true"]
    only_on:
      events: [merge_group]
`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestParse_PublishWithoutImage(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
name: app
stages:
  - name: publish
    publish: true
`))
	if !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
}

func TestParse_TagScheme(t *testing.T) {
	p, err := Parse([]byte(`
version: 1
name: app
image: docker.io/shaiso/app
stages:
  - name: build
    tag_scheme: timestamp
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	build := p.DomainStages()[0]
	if build.TagScheme != domain.TagSchemeTimestamp {
		t.Errorf("expected tag scheme timestamp, got %q", build.TagScheme)
	}
}

func TestParse_UnknownTagScheme(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
name: app
image: docker.io/shaiso/app
stages:
  - name: build
    tag_scheme: git-sha
`))
	if !errors.Is(err, ErrBadTagScheme) {
		t.Errorf("expected ErrBadTagScheme, got %v", err)
	}
}

func TestParse_TagSchemeOnPublish(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
name: app
image: docker.io/shaiso/app
stages:
  - name: publish
    publish: true
    tag_scheme: timestamp
`))
	if !errors.Is(err, ErrTagSchemeOnPublish) {
		t.Errorf("expected ErrTagSchemeOnPublish, got %v", err)
	}
}

func TestParse_TagSchemeWithoutImage(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
name: app
stages:
  - name: build
    tag_scheme: timestamp
`))
	if !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}
}

func TestParse_NotYAML(t *testing.T) {
	_, err := Parse([]byte("{not: [valid"))
	if err == nil {
		t.Error("expected parse error")
	}
}
