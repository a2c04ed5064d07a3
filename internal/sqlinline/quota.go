package sqlinline

// Reservation runs as three statements because a statement's final UPDATE
// cannot see rows written by its own CTEs: ensure the row exists, roll an
// expired period forward, then consume conditionally. Each statement is
// idempotent, so a crash between them costs nothing.

const QQuotaEnsure = `--sql f844c255-85d2-46e2-a0b0-6236773ac7fa
insert into quota_ledger (owner_id, used, monthly_limit, period_start, period_end)
values ($1::text, 0, $2::int, now(), now() + interval '30 days')
on conflict (owner_id) do nothing;
`

const QQuotaRollPeriod = `--sql 0b6f36bb-6d02-47d6-9f40-7a2dc1a55c0e
update quota_ledger
set used = 0,
    period_start = period_end,
    period_end = period_end + interval '30 days'
where owner_id = $1::text
  and period_end < now();
`

// Zero rows affected means the quota is exhausted.
const QQuotaConsume = `--sql 51b9b9b2-6a3a-4f03-8a4e-3d7a12f66f21
update quota_ledger
set used = used + $2::int
where owner_id = $1::text
  and used + $2::int <= monthly_limit
returning monthly_limit - used;
`

const QQuotaRefund = `--sql 367bac77-b7ca-4c05-bca0-8fdbc76e3907
update quota_ledger
set used = greatest(used - $2::int, 0)
where owner_id = $1::text;
`

const QQuotaSelect = `--sql e1e73254-d757-4f0b-91e0-9de4f8e86a67
select owner_id, used, monthly_limit, period_start, period_end
from quota_ledger
where owner_id = $1::text
limit 1;
`
