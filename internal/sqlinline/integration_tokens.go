package sqlinline

const QSelectIntegrationToken = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
insert into integration_tokens (provider, token, updated_at)
values ($1::text, $2::text, now())
on conflict (provider) do update set
    token = excluded.token,
    updated_at = now();
`

const QSelectDriveToken = `--sql 3f1f6b0e-4c55-4a5e-9a0e-2d4b7f0c9e11
select access_token, refresh_token, token_type, expiry
from drive_tokens
where user_id = $1::text;
`

const QUpsertDriveToken = `--sql 9b7e4a2c-1d3f-4e8a-b6c5-7f2e0a9d4c38
insert into drive_tokens (user_id, access_token, refresh_token, token_type, expiry, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5, now())
on conflict (user_id) do update set
    access_token = excluded.access_token,
    refresh_token = case when excluded.refresh_token = '' then drive_tokens.refresh_token else excluded.refresh_token end,
    token_type = excluded.token_type,
    expiry = excluded.expiry,
    updated_at = now();
`

const QDeleteDriveToken = `--sql e2c8d5f1-6a7b-4c9e-8d3a-5b1f0e7c2a64
delete from drive_tokens
where user_id = $1::text;
`
