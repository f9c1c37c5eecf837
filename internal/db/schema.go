package db

// SchemaSQL contains the database schema initialization SQL. All normal
// reads filter deleted_at = NONE; deletes only ever set the tombstone.
const SchemaSQL = `
    -- ==========================================================================
    -- SESSION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS session SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS description ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS agent ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS mode ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS total_tokens ON session TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS tenant_id ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS owner_id ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS encryption_level ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON session FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS edges ON session FLEXIBLE TYPE option<array<object>>;
    DEFINE FIELD IF NOT EXISTS tags ON session TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS created_at ON session TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON session TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS deleted_at ON session TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS session_owner ON session FIELDS owner_id;

    -- ==========================================================================
    -- MESSAGE TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS token_count ON message TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS tool_call ON message FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS trace_id ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS span_id ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS tenant_id ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS owner_id ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS encryption_level ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON message FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS edges ON message FLEXIBLE TYPE option<array<object>>;
    DEFINE FIELD IF NOT EXISTS tags ON message TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON message TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS deleted_at ON message TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS message_session ON message FIELDS session_id;
    DEFINE INDEX IF NOT EXISTS message_created ON message FIELDS created_at;
    DEFINE INDEX IF NOT EXISTS message_owner ON message FIELDS owner_id;

    -- ==========================================================================
    -- MOMENT TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS moment SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON moment TYPE string;
    DEFINE FIELD IF NOT EXISTS summary ON moment TYPE string DEFAULT '';
    DEFINE FIELD IF NOT EXISTS moment_type ON moment TYPE string;
    DEFINE FIELD IF NOT EXISTS source_session_id ON moment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS starts_timestamp ON moment TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS ends_timestamp ON moment TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS previous_moment_keys ON moment TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS tenant_id ON moment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS owner_id ON moment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS encryption_level ON moment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON moment FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS edges ON moment FLEXIBLE TYPE option<array<object>>;
    DEFINE FIELD IF NOT EXISTS tags ON moment TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS created_at ON moment TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON moment TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS deleted_at ON moment TYPE option<datetime>;

    -- Unique (session, chunk_index) guard: two racing builders can never
    -- both land a moment for the same window.
    DEFINE FIELD IF NOT EXISTS chunk_key ON moment VALUE
        IF moment_type = 'session_chunk' AND source_session_id != NONE
        THEN string::concat(<string>source_session_id, '#', <string>(metadata.chunk_index ?? 0))
        ELSE <string>id END;
    DEFINE INDEX IF NOT EXISTS moment_chunk_unique ON moment FIELDS chunk_key UNIQUE;
    DEFINE INDEX IF NOT EXISTS moment_name ON moment FIELDS name;
    DEFINE INDEX IF NOT EXISTS moment_session ON moment FIELDS source_session_id;
    DEFINE INDEX IF NOT EXISTS moment_owner ON moment FIELDS owner_id;

    -- ==========================================================================
    -- TENANT TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS tenant SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON tenant TYPE string;
    DEFINE FIELD IF NOT EXISTS mode ON tenant TYPE string;
    DEFINE FIELD IF NOT EXISTS key_id ON tenant TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS wrapped_dek ON tenant TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS sealed_public_key ON tenant TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS redact_pii ON tenant TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS tenant_id ON tenant TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS owner_id ON tenant TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS encryption_level ON tenant TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON tenant FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS edges ON tenant FLEXIBLE TYPE option<array<object>>;
    DEFINE FIELD IF NOT EXISTS tags ON tenant TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS created_at ON tenant TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON tenant TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS deleted_at ON tenant TYPE option<datetime>;

    -- ==========================================================================
    -- USER TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS user SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS email ON user TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS display_name ON user TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS tenant_id ON user TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS owner_id ON user TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS encryption_level ON user TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON user FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS edges ON user FLEXIBLE TYPE option<array<object>>;
    DEFINE FIELD IF NOT EXISTS tags ON user TYPE option<array<string>>;
    DEFINE FIELD IF NOT EXISTS created_at ON user TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON user TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS deleted_at ON user TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS user_email ON user FIELDS email;
`
