package sqlinline

const QCreatePaymentClaims = `--sql 5d2f8c3e-1a4b-4c6d-9e7f-0a1b2c3d4e5f
create table if not exists payment_claims (
  reference text primary key,
  session_id text not null,
  amount_int bigint not null default 0,
  currency text not null default '',
  claimed_at timestamptz not null default now()
);
`

// QClaimPaymentReference inserts the claim or, on conflict, returns the
// session that already owns the reference.
const QClaimPaymentReference = `--sql 8c4e2a17-6b3d-4f09-a5e1-7d2c9b0f3e64
insert into payment_claims(reference, session_id, amount_int, currency, claimed_at)
values ($1::text, $2::text, $3::bigint, $4::text, now())
on conflict (reference) do update set reference = excluded.reference
returning session_id;
`
