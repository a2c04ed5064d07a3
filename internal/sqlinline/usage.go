package sqlinline

const QInsertUsageEvent = `--sql 39d5df28-5eef-4366-ae1c-028135eca4e4
insert into usage_events (id, owner_id, task_id, event_type, success, latency_ms, created_at, properties)
values (gen_random_uuid(), $1::text, $2::uuid, $3::text, $4::boolean, $5::int, now(), coalesce($6::jsonb, '{}'::jsonb));
`
