package sqlite

const schema = `
-- Canonical persons
CREATE TABLE IF NOT EXISTS person (
    person_id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL CHECK(length(display_name) <= 500),
    birth_name TEXT NOT NULL DEFAULT '',
    gender TEXT NOT NULL DEFAULT 'unknown' CHECK(gender IN ('male','female','unknown')),
    living INTEGER NOT NULL DEFAULT 0,
    bio TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Provider identity mapping. (source, external_id) is the key; a person
-- may hold several rows per source after provider merges, with the
-- current one carrying the highest confidence / latest registration.
CREATE TABLE IF NOT EXISTS external_identity (
    person_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    external_id TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 1.0 CHECK(confidence >= 0.0 AND confidence <= 1.0),
    registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_identity_person ON external_identity(person_id);
CREATE INDEX IF NOT EXISTS idx_identity_lookup ON external_identity(person_id, source, confidence DESC, registered_at DESC);
CREATE INDEX IF NOT EXISTS idx_identity_external ON external_identity(external_id);

-- Child -> parent edges. Not unique on role: a child can accumulate more
-- than two parents across sources. Cycles are tolerated by traversals,
-- never prevented here.
CREATE TABLE IF NOT EXISTS parent_edge (
    child_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    parent_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    parent_role TEXT NOT NULL DEFAULT 'parent' CHECK(parent_role IN ('father','mother','parent')),
    source TEXT NOT NULL,
    PRIMARY KEY (child_id, parent_id, source)
);

CREATE INDEX IF NOT EXISTS idx_parent_edge_parent ON parent_edge(parent_id);

-- Unordered spouse pairs, stored canonically with person1 < person2.
CREATE TABLE IF NOT EXISTS spouse_edge (
    person1_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    person2_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    PRIMARY KEY (person1_id, person2_id, source),
    CHECK(person1_id < person2_id)
);

CREATE INDEX IF NOT EXISTS idx_spouse_edge_p2 ON spouse_edge(person2_id);

-- Vital events: birth, death, burial, and whatever else providers send.
-- date_year is signed, BC negative. One event per (person, type, source).
CREATE TABLE IF NOT EXISTS vital_event (
    event_id INTEGER PRIMARY KEY AUTOINCREMENT,
    person_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    event_type TEXT NOT NULL CHECK(length(event_type) > 0),
    date_original TEXT NOT NULL DEFAULT '',
    date_formal TEXT NOT NULL DEFAULT '',
    date_year INTEGER,
    place TEXT NOT NULL DEFAULT '',
    place_id TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL,
    UNIQUE (person_id, event_type, source)
);

CREATE INDEX IF NOT EXISTS idx_event_person ON vital_event(person_id);
CREATE INDEX IF NOT EXISTS idx_event_place ON vital_event(place) WHERE place != '';

-- Open-vocabulary per-person assertions (occupation, alias, religion, title).
CREATE TABLE IF NOT EXISTS claim (
    claim_id INTEGER PRIMARY KEY AUTOINCREMENT,
    person_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    predicate TEXT NOT NULL,
    value_text TEXT NOT NULL,
    source TEXT NOT NULL,
    UNIQUE (person_id, predicate, value_text, source)
);

CREATE INDEX IF NOT EXISTS idx_claim_person ON claim(person_id);

-- Named rooted subgraphs ("databases") and their membership.
CREATE TABLE IF NOT EXISTS database_info (
    db_id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    root_id TEXT NOT NULL REFERENCES person(person_id),
    max_generations INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS database_person (
    db_id TEXT NOT NULL REFERENCES database_info(db_id) ON DELETE CASCADE,
    person_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    is_root INTEGER NOT NULL DEFAULT 0,
    generation INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (db_id, person_id)
);

CREATE INDEX IF NOT EXISTS idx_db_person_person ON database_person(person_id);

-- Favorites are scoped to a database. Tags is a JSON array, order kept.
CREATE TABLE IF NOT EXISTS favorite (
    db_id TEXT NOT NULL REFERENCES database_info(db_id) ON DELETE CASCADE,
    person_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    why_interesting TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (db_id, person_id)
);

-- Content-addressed blob metadata; bytes live on disk under blobs/<xx>/.
-- media.blob_hash has no ON DELETE action on purpose: a referenced blob
-- must not be deletable.
CREATE TABLE IF NOT EXISTS blob (
    blob_hash TEXT PRIMARY KEY CHECK(length(blob_hash) = 64),
    path TEXT NOT NULL,
    mime_type TEXT NOT NULL DEFAULT 'application/octet-stream',
    size_bytes INTEGER NOT NULL,
    width INTEGER,
    height INTEGER
);

CREATE TABLE IF NOT EXISTS media (
    media_id TEXT PRIMARY KEY,
    person_id TEXT NOT NULL REFERENCES person(person_id) ON DELETE CASCADE,
    blob_hash TEXT NOT NULL REFERENCES blob(blob_hash),
    source TEXT NOT NULL,
    is_primary INTEGER NOT NULL DEFAULT 0,
    caption TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_media_person ON media(person_id);
CREATE INDEX IF NOT EXISTS idx_media_blob ON media(blob_hash);

-- Geocode cache keyed by normalized place text.
CREATE TABLE IF NOT EXISTS place_geocode (
    place_text TEXT PRIMARY KEY,
    lat REAL,
    lng REAL,
    display_name TEXT NOT NULL DEFAULT '',
    geocode_status TEXT NOT NULL DEFAULT 'pending' CHECK(geocode_status IN ('pending','resolved','not_found','error')),
    geocoded_at DATETIME
);

-- Full-text index, exactly one row per person, rowid = person rowid.
-- aliases and occupations are denormalized from claims on each person
-- write so searches never see stale values.
CREATE VIRTUAL TABLE IF NOT EXISTS person_fts USING fts5(
    person_id UNINDEXED,
    display_name,
    birth_name,
    aliases,
    bio,
    occupations
);

-- Migration bookkeeping.
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
