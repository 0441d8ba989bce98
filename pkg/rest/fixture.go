package rest

import (
	"fmt"
	"io"
	"os"

	"github.com/edgeflare/pgrest/pkg/pgx/schema"
	"gopkg.in/yaml.v3"
)

// Fixture is the yaml description of a Store:
//
//	tables:
//	  - name: channels
//	    primary_keys: [id]
//	    columns:
//	      - {name: id, data_type: int8}
//	      - {name: slug, data_type: text, is_nullable: true}
//	    rows:
//	      - {id: 1, slug: public}
type Fixture struct {
	Tables []FixtureTable `yaml:"tables"`
}

type FixtureTable struct {
	schema.Table `yaml:",inline"`
	Rows         []Row `yaml:"rows"`
}

// LoadFixture decodes a yaml fixture into a new Store.
func LoadFixture(r io.Reader) (*Store, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	s := NewStore()
	for _, t := range f.Tables {
		for i, c := range t.Columns {
			if !c.IsPrimaryKey {
				for _, pk := range t.PrimaryKeys {
					if pk == c.Name {
						t.Columns[i].IsPrimaryKey = true
					}
				}
			}
		}
		if err := s.AddTable(t.Table, t.Rows...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadFixtureFile reads a yaml fixture from path.
func LoadFixtureFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFixture(f)
}
